package domain

// EngineSnapshot is the immutable portfolio view published to the GUI
// bridge's single-writer, multi-reader snapshot pointer.
type EngineSnapshot struct {
	ActivePositions []Position
	BotState        BotState
	TimestampUnix   int64
}

// PriceUpdate is one tick of the GUI bridge's price stream, delivered
// with try-send semantics (dropped silently when the reader is slow).
type PriceUpdate struct {
	Mint          Mint
	Price         float64
	TimestampUnix int64
}
