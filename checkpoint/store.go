package checkpoint

// MetaStore is the part of a node store that holds checkpoints.
type MetaStore interface {
	PutMeta(name string, value []byte) error
	GetMeta(name string) ([]byte, bool, error)
}

// MetaName is the store meta key the latest checkpoint for engine is kept
// under.
func MetaName(engine string) string {
	return "checkpoint." + engine
}

// Save replaces the stored checkpoint for engine.
func Save(store MetaStore, engine string, msg []byte) error {
	return store.PutMeta(MetaName(engine), msg)
}

// Load returns the stored checkpoint for engine, if there is one.
func Load(store MetaStore, engine string) ([]byte, bool, error) {
	return store.GetMeta(MetaName(engine))
}
