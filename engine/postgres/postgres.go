package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yugabyte/pgx/v5/pgconn"
	"github.com/yugabyte/pgx/v5/pgproto3"

	"github.com/web3tea/cdc-relay/engine"
	"github.com/web3tea/cdc-relay/pkg/log"
)

const (
	defaultOutputPlugin = "pgoutput"
	defaultSlotPrefix   = "cdc_relay_slot_"
	defaultPublicPrefix = "cdc_relay_pub_"

	standbyMessageTimeout = time.Second * 5
	receiveTimeout        = time.Second * 5
)

func init() {
	engine.RegisterSource("postgres", func(cfg engine.Config) (engine.Source, error) {
		return NewSource(cfg)
	})
}

// Source captures committed transactions from a PostgreSQL logical
// replication slot using the pgoutput plugin.
type Source struct {
	cfg  engine.Config
	conn *pgconn.PgConn

	pubCreated  bool
	slotCreated bool

	startLSN   LSN
	appliedLSN LSN
	mu         sync.Mutex
}

func NewSource(cfg engine.Config) (*Source, error) {
	if len(cfg.Database.Hosts) == 0 {
		return nil, fmt.Errorf("no database hosts provided")
	}
	if cfg.SlotName == "" {
		cfg.SlotName = defaultSlotPrefix + time.Now().Format("20060102150405")
		cfg.DropSlotOnStop = true
	}
	if cfg.PublicationName == "" {
		cfg.PublicationName = defaultPublicPrefix + time.Now().Format("20060102150405")
		cfg.DropPublicationOnStop = true
	}
	return &Source{cfg: cfg}, nil
}

// Init implements engine.Source. It establishes the control connection
// and provisions the publication and replication slot. On failure the
// resources created so far are released.
func (s *Source) Init(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize postgres source")
			if cerr := s.cleanUp(context.Background()); cerr != nil {
				log.Error().Err(cerr).Msg("failed to clean up after init failure")
			}
		}
	}()

	if err := s.createConn(ctx); err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	if err := s.createPublication(ctx); err != nil {
		return fmt.Errorf("failed to create publication: %w", err)
	}
	if err := s.createReplicationSlot(ctx); err != nil {
		return fmt.Errorf("failed to create replication slot: %w", err)
	}
	return nil
}

// Run implements engine.Source. It opens a replication connection,
// streams WAL from the slot and pushes one batch per committed
// transaction into out until ctx is cancelled.
func (s *Source) Run(ctx context.Context, out *engine.OutputChannel) error {
	conn, err := s.replicationConn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get replication connection: %w", err)
	}
	defer conn.Close(context.Background())

	s.mu.Lock()
	startLSN := s.startLSN
	s.mu.Unlock()

	log.Info().Str("slot", s.cfg.SlotName).Str("lsn", startLSN.String()).Msg("starting replication")

	err = StartReplication(ctx, conn, s.cfg.SlotName, startLSN, StartReplicationOptions{
		PluginArgs: []string{
			"proto_version '1'",
			fmt.Sprintf("publication_names '%s'", s.cfg.PublicationName),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start replication: %w", err)
	}

	decoder := newRowDecoder()
	standbyTicker := time.NewTicker(time.Second)
	defer standbyTicker.Stop()
	nextStandbyMessageDeadline := time.Now().Add(standbyMessageTimeout)
	clientXLogPos := startLSN

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("postgres source exiting")
			return ctx.Err()
		case <-standbyTicker.C:
			if time.Now().After(nextStandbyMessageDeadline) {
				applied := s.AppliedLSN()
				err := SendStandbyStatusUpdate(ctx, conn, StandbyStatusUpdate{
					WALWritePosition: clientXLogPos,
					WALFlushPosition: applied,
					WALApplyPosition: applied,
				})
				if err != nil {
					log.Error().Err(err).Msg("failed to send standby status update")
					continue
				}
				log.Debug().Str("write", clientXLogPos.String()).Str("applied", applied.String()).
					Msg("sent standby status update")
				nextStandbyMessageDeadline = time.Now().Add(standbyMessageTimeout)
			}
		default:
			receiveCtx, cancel := context.WithTimeout(ctx, receiveTimeout)
			rawMsg, err := conn.ReceiveMessage(receiveCtx)
			cancel()
			if err != nil {
				if pgconn.Timeout(err) {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("failed to receive message: %w", err)
			}

			switch msg := rawMsg.(type) {
			case *pgproto3.ErrorResponse:
				return fmt.Errorf("replication stream error: %s (SQLSTATE %s)", msg.Message, msg.Code)
			case *pgproto3.CopyData:
				switch msg.Data[0] {
				case PrimaryKeepaliveMessageByteID:
					pkm, err := ParsePrimaryKeepaliveMessage(msg.Data[1:])
					if err != nil {
						log.Error().Err(err).Msg("failed to parse primary keepalive message")
						continue
					}
					if pkm.ServerWALEnd > clientXLogPos {
						clientXLogPos = pkm.ServerWALEnd
					}
					if pkm.ReplyRequested {
						nextStandbyMessageDeadline = time.Time{}
					}

				case XLogDataByteID:
					xld, err := ParseXLogData(msg.Data[1:])
					if err != nil {
						log.Error().Err(err).Msg("failed to parse XLogData")
						continue
					}
					if err := decoder.Process(ctx, xld.WALData, out); err != nil {
						if ctx.Err() != nil {
							return ctx.Err()
						}
						log.Error().Err(err).Msg("failed to process WAL data")
					}
					if xld.WALStart > clientXLogPos {
						clientXLogPos = xld.WALStart
					}
				default:
					log.Debug().Uint8("id", msg.Data[0]).Msg("ignoring unknown copy data")
				}
			default:
				log.Debug().Str("type", fmt.Sprintf("%T", msg)).Msg("ignoring unexpected message")
			}
		}
	}
}

// Ack implements engine.Source. It records a delivered checkpoint; the
// position is reported to the server with the next standby status update.
func (s *Source) Ack(ctx context.Context, checkpoint string) error {
	if checkpoint == "" {
		return nil
	}
	lsn, err := ParseLSN(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to parse checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if lsn > s.appliedLSN {
		s.appliedLSN = lsn
		log.Debug().Str("lsn", lsn.String()).Msg("checkpoint acknowledged")
	}
	return nil
}

// AppliedLSN returns the highest acknowledged position.
func (s *Source) AppliedLSN() LSN {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appliedLSN
}

// Close implements engine.Source. It drops the provisioned publication
// and slot when configured to, then closes the control connection. Safe
// to call more than once.
func (s *Source) Close(ctx context.Context) error {
	return s.cleanUp(ctx)
}

func (s *Source) cleanUp(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.conn.IsClosed() {
		return nil
	}

	var errs []error
	if s.pubCreated && s.cfg.DropPublicationOnStop {
		if err := s.dropPublication(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.slotCreated && s.cfg.DropSlotOnStop {
		if err := s.dropReplicationSlot(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.conn.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to clean up: %v", errs)
	}
	return nil
}

func (s *Source) buildConnConfig() (*pgconn.Config, error) {
	connString := "host=" + s.cfg.Database.Hosts[0] + " "
	for k, v := range map[string]string{
		"user":     s.cfg.Database.Username,
		"password": s.cfg.Database.Password,
		"dbname":   s.cfg.Database.Database,
		"port":     fmt.Sprintf("%d", s.cfg.Database.Port),
	} {
		if strings.TrimSpace(v) != "" {
			connString += k + "=" + v + " "
		}
	}
	cfg, err := pgconn.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	for _, host := range s.cfg.Database.Hosts[1:] {
		cfg.Fallbacks = append(cfg.Fallbacks, &pgconn.FallbackConfig{
			Host: host,
			Port: s.cfg.Database.Port,
		})
	}
	cfg.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		log.Warn().Str("message", notice.Message).Msg("database notice")
	}
	return cfg, nil
}

func (s *Source) createConn(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil && !s.conn.IsClosed() {
		return nil
	}

	cfg, err := s.buildConnConfig()
	if err != nil {
		return fmt.Errorf("failed to build connection config: %w", err)
	}

	conn, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s.conn = conn
	return nil
}

func (s *Source) replicationConn(ctx context.Context) (*pgconn.PgConn, error) {
	cfg, err := s.buildConnConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection config: %w", err)
	}
	cfg.RuntimeParams["replication"] = "database"

	conn, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return conn, nil
}

func (s *Source) createPublication(ctx context.Context) error {
	exists, err := CheckPublicationExists(ctx, s.conn, s.cfg.PublicationName)
	if err != nil {
		return fmt.Errorf("failed to check if publication exists: %w", err)
	}
	if exists {
		log.Info().Str("publication", s.cfg.PublicationName).Msg("publication already exists")
		return nil
	}

	params := PublicationParams{
		Name:            s.cfg.PublicationName,
		Tables:          s.cfg.Tables,
		AllTables:       len(s.cfg.Tables) == 0, // empty tables means all tables
		PublishInsert:   true,
		PublishUpdate:   true,
		PublishDelete:   true,
		PublishTruncate: true,
	}

	if err := CreatePublication(ctx, s.conn, params); err != nil {
		return err
	}

	log.Info().Str("publication", s.cfg.PublicationName).Msg("publication created")
	s.pubCreated = true
	return nil
}

func (s *Source) dropPublication(ctx context.Context) error {
	if err := DropPublication(ctx, s.conn, s.cfg.PublicationName); err != nil {
		return err
	}
	log.Info().Str("publication", s.cfg.PublicationName).Msg("publication dropped")
	s.pubCreated = false
	return nil
}

func (s *Source) createReplicationSlot(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := CheckReplicationSlotExists(ctx, s.conn, s.cfg.SlotName)
	if err != nil {
		return fmt.Errorf("failed to check if replication slot exists: %w", err)
	}
	if exists {
		slot, err := GetReplicationSlot(ctx, s.conn, s.cfg.SlotName)
		if err != nil {
			return fmt.Errorf("failed to get replication slot: %w", err)
		}
		log.Info().Str("slot", s.cfg.SlotName).Msg("replication slot already exists")
		s.startLSN = slot.ConfirmedFlushLSN
		s.appliedLSN = slot.ConfirmedFlushLSN
		return nil
	}

	result, err := CreateLogicalReplicationSlot(ctx, s.conn, s.cfg.SlotName, CreateReplicationSlotOptions{
		OutputPlugin: defaultOutputPlugin,
		Temporary:    false,
	})
	if err != nil {
		return fmt.Errorf("failed to create replication slot: %w", err)
	}

	log.Info().Str("slot", result.Name).Str("lsn", result.LSN.String()).Msg("replication slot created")
	s.slotCreated = true
	s.startLSN = result.LSN
	s.appliedLSN = result.LSN
	return nil
}

func (s *Source) dropReplicationSlot(ctx context.Context) error {
	if err := DropReplicationSlot(ctx, s.conn, s.cfg.SlotName); err != nil {
		return fmt.Errorf("failed to drop replication slot: %w", err)
	}
	log.Info().Str("slot", s.cfg.SlotName).Msg("replication slot dropped")
	s.slotCreated = false
	return nil
}

var _ engine.Source = (*Source)(nil)
