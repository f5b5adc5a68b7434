package imports

import "crypto/rand"

const defaultName = "linuxrun-wasm-module"

var defaultRand = rand.Reader
