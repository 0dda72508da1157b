package backend

import (
	"context"
	"fmt"
	"sync"

	"blackout/internal/amqp"
	"blackout/internal/events"
	"blackout/internal/events/kafka"
	"blackout/internal/log"
	"blackout/internal/sheets"
	gsheet "blackout/internal/sheets/google"
	sheetsmem "blackout/internal/sheets/memory"
	"blackout/internal/storage"
	"blackout/internal/storage/memory"
	"blackout/internal/storage/postgres"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger

	busOnce sync.Once
	bus     *events.Channel
}

const inprocBuffer = 256

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateStore opens the configured record store. SQL stores are migrated
// before they are returned.
func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (storage.Store, error) {
	switch config.Store {
	case MemoryStore:
		f.logger.Warn("Using in-memory record store; data is lost on restart")
		return memory.New(), nil
	case SQLiteStore:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return repo, nil
	case PostgresStore:
		store, err := postgres.Open(ctx, config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		f.logger.Info("Initialized postgres store")
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Store)
	}
}

// CreatePublisher returns the event publisher for the API process.
func (f *DefaultFactory) CreatePublisher(ctx context.Context, config Config) (events.Publisher, error) {
	switch config.Events {
	case NoEvents, "":
		f.logger.Info("Ledger events disabled")
		return events.Noop{}, nil
	case AMQPEvents:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP publisher: %w", err)
		}
		f.logger.Info("Initialized AMQP publisher", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)
		return client, nil
	case InProcEvents:
		f.logger.Warn("Using in-process event bus; pending events are lost on exit")
		return f.inproc(), nil
	case KafkaEvents:
		f.logger.Info("Initialized Kafka publisher", "brokers", config.KafkaBrokers, "topic", config.KafkaTopic)
		return kafka.NewPublisher(config.KafkaBrokers, config.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unsupported events type: %s", config.Events)
	}
}

// CreateConsumer returns the event consumer for the mirror worker. A worker
// without a transport has nothing to consume, so "none" is an error here.
// For "inproc" it is the same bus CreatePublisher returned.
func (f *DefaultFactory) CreateConsumer(ctx context.Context, config Config) (events.Consumer, error) {
	switch config.Events {
	case AMQPEvents:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP consumer: %w", err)
		}
		f.logger.Info("Initialized AMQP consumer", "queue", config.AMQPQueue)
		return client, nil
	case InProcEvents:
		return f.inproc(), nil
	case KafkaEvents:
		f.logger.Info("Initialized Kafka consumer", "topic", config.KafkaTopic, "group_id", config.KafkaGroupID)
		return kafka.NewConsumer(config.KafkaBrokers, config.KafkaTopic, config.KafkaGroupID), nil
	default:
		return nil, fmt.Errorf("events backend %q cannot be consumed; use amqp or kafka", config.Events)
	}
}

func (f *DefaultFactory) CreateMirror(ctx context.Context, config Config) (sheets.Mirror, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring to memory")
		return sheetsmem.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID: config.GoogleSpreadsheetID,
		SheetName:     config.GoogleSheetName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets mirror", "sheet", config.GoogleSheetName)
	return client, nil
}

// inproc returns the factory's in-process bus, shared by publisher and
// consumer.
func (f *DefaultFactory) inproc() *events.Channel {
	f.busOnce.Do(func() {
		f.bus = events.NewChannel(inprocBuffer)
		f.bus.OnDrop = func(e events.LedgerEvent, err error) {
			f.logger.Warn("Dropped ledger event after repeated mirror failures",
				log.FieldEventID, e.EventID,
				log.FieldEventType, string(e.Type),
				log.FieldOwnerID, e.OwnerID,
				log.FieldError, err)
		}
	})
	return f.bus
}
