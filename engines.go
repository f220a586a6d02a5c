package lmkv

// Register the bundled engines so Config.Engine resolves without extra
// imports.
import (
	_ "github.com/Giulio2002/lmkv/engine/boltengine"
	_ "github.com/Giulio2002/lmkv/engine/mdbxengine"
)
