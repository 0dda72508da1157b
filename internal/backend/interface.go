package backend

import (
	"context"

	"blackout/internal/events"
	"blackout/internal/sheets"
	"blackout/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Factory builds the pluggable parts of a process from configuration.
type Factory interface {
	CreateStore(ctx context.Context, config Config) (storage.Store, error)
	CreatePublisher(ctx context.Context, config Config) (events.Publisher, error)
	CreateConsumer(ctx context.Context, config Config) (events.Consumer, error)
	// CreateMirror returns the spreadsheet mirror, falling back to an
	// in-memory one when no spreadsheet is configured.
	CreateMirror(ctx context.Context, config Config) (sheets.Mirror, error)
}

// Config holds configuration for backend creation
type Config struct {
	Store StoreType

	SQLiteDBPath string
	DatabaseURL  string

	Events       EventsType
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	GoogleSpreadsheetID string
	GoogleSheetName     string
}

// StoreType selects the record store implementation.
type StoreType string

const (
	MemoryStore   StoreType = "memory"
	SQLiteStore   StoreType = "sqlite"
	PostgresStore StoreType = "postgres"
)

func (st StoreType) String() string {
	return string(st)
}

// IsValid returns true if the store type is valid
func (st StoreType) IsValid() bool {
	switch st {
	case MemoryStore, SQLiteStore, PostgresStore:
		return true
	default:
		return false
	}
}

// EventsType selects the ledger event transport.
type EventsType string

const (
	NoEvents    EventsType = "none"
	AMQPEvents  EventsType = "amqp"
	KafkaEvents EventsType = "kafka"
	// InProcEvents delivers events to a mirror running inside the API
	// process. Undelivered events are lost on exit.
	InProcEvents EventsType = "inproc"
)

func (et EventsType) String() string {
	return string(et)
}

func (et EventsType) IsValid() bool {
	switch et {
	case NoEvents, AMQPEvents, KafkaEvents, InProcEvents:
		return true
	default:
		return false
	}
}
