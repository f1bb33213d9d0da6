package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database/mysql"
	_ "github.com/golang-migrate/migrate/source/file"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/txconfirm/config"
	"github.com/sisu-network/txconfirm/types"
)

type Database interface {
	Init() error
	Close() error

	// SaveResolution queues a resolution to be written. It does not block on the write.
	SaveResolution(update *types.TrackUpdate)
	// LoadResolution returns nil if the tx hash has never been resolved on the chain.
	LoadResolution(chain, txHash string) (*types.TrackUpdate, error)
}

type DefaultDatabase struct {
	cfg *config.Config
	db  *sql.DB

	saveCh    chan *types.TrackUpdate
	closeCh   chan struct{}
	closeOnce *sync.Once
}

type dbLogger struct {
}

func (loggger *dbLogger) Printf(format string, v ...interface{}) {
	log.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (loggger *dbLogger) Verbose() bool {
	return true
}

func NewDb(cfg *config.Config) Database {
	return &DefaultDatabase{
		cfg:       cfg,
		saveCh:    make(chan *types.TrackUpdate, 100),
		closeCh:   make(chan struct{}),
		closeOnce: &sync.Once{},
	}
}

func (d *DefaultDatabase) Connect() error {
	if d.cfg.InMemory {
		database, err := sql.Open("sqlite3", ":memory:")
		if err != nil {
			return err
		}
		// Every connection of sqlite gets its own in-memory db.
		database.SetMaxOpenConns(1)

		d.db = database
		log.Info("In-memory db is created successfully")
		return nil
	}

	host := d.cfg.DbHost
	if host == "" {
		return fmt.Errorf("DB host cannot be empty")
	}

	port := d.cfg.DbPort

	username := d.cfg.DbUsername
	password := d.cfg.DbPassword
	schema := d.cfg.DbSchema

	// Connect to the db
	url := fmt.Sprintf("%s:%s@tcp(%s:%d)/", username, password, host, port)
	database, err := sql.Open("mysql", url)
	if err != nil {
		return err
	}
	_, err = database.Exec("CREATE DATABASE IF NOT EXISTS " + schema)
	if err != nil {
		return err
	}
	database.Close()

	database, err = sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", username, password, host, port, schema))
	if err != nil {
		return err
	}

	d.db = database
	log.Info("Db is connected successfully")
	return nil
}

func (d *DefaultDatabase) DoMigration() error {
	if d.cfg.InMemory {
		return d.migrateInMemory()
	}

	driver, err := mysql.WithInstance(d.db, &mysql.Config{})
	if err != nil {
		return err
	}

	dir, err := MigrationsTempDir()
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+dir,
		"mysql",
		driver,
	)

	if err != nil {
		return err
	}

	m.Log = &dbLogger{}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}

	return nil
}

// migrateInMemory runs the up migrations in order on a fresh sqlite db.
func (d *DefaultDatabase) migrateInMemory() error {
	files, err := migrationFiles("up.sql")
	if err != nil {
		return err
	}

	for _, file := range files {
		content, err := readMigration(file)
		if err != nil {
			return err
		}

		if _, err := d.db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", file, err)
		}
	}

	return nil
}

func (d *DefaultDatabase) Init() error {
	err := d.Connect()
	if err != nil {
		log.Error("Failed to connect to DB. Err =", err)
		return err
	}

	err = d.DoMigration()
	if err != nil {
		return err
	}

	go d.listen()

	return nil
}

func (d *DefaultDatabase) Close() error {
	d.closeOnce.Do(func() {
		close(d.closeCh)
	})

	if d.db == nil {
		return nil
	}

	return d.db.Close()
}

// Listen to request to save into datbase.
func (d *DefaultDatabase) listen() {
	for {
		select {
		case <-d.closeCh:
			return
		case update := <-d.saveCh:
			if err := d.doSave(update); err != nil {
				log.Error("Cannot save into db, err = ", err)
			}
		}
	}
}

func (d *DefaultDatabase) doSave(update *types.TrackUpdate) error {
	var context []byte
	if len(update.Context) > 0 {
		var err error
		context, err = json.Marshal(update.Context)
		if err != nil {
			return err
		}
	}

	var remaining sql.NullInt64
	if update.Remaining != nil {
		remaining = sql.NullInt64{Int64: int64(*update.Remaining), Valid: true}
	}

	// A hash registered again after its resolution replaces the previous row.
	_, err := d.db.Exec(`REPLACE INTO resolutions (chain, tx_hash, block_height, result, address, error,
		context, group_id, remaining) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		update.Chain, update.Hash, update.BlockHeight, int(update.Result), nullString(update.Address),
		nullString(update.Error), nullString(string(context)), nullString(update.GroupId), remaining)

	return err
}

// SaveResolution drops the update with a warning when the db is closed or the write queue is
// full, so a slow db never stalls block processing.
func (d *DefaultDatabase) SaveResolution(update *types.TrackUpdate) {
	select {
	case <-d.closeCh:
		log.Warnf("Db is closed, cannot save resolution of tx %s", update.Hash)
		return
	default:
	}

	select {
	case d.saveCh <- update:
	default:
		log.Warnf("Db save queue is full, dropping resolution of tx %s on chain %s", update.Hash, update.Chain)
	}
}

func (d *DefaultDatabase) LoadResolution(chain, txHash string) (*types.TrackUpdate, error) {
	rows, err := d.db.Query(`SELECT block_height, result, address, error, context, group_id, remaining
		FROM resolutions WHERE chain=? AND tx_hash=?`, chain, txHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	var (
		blockHeight                       int64
		result                            int
		address, errStr, context, groupId sql.NullString
		remaining                         sql.NullInt64
	)
	if err := rows.Scan(&blockHeight, &result, &address, &errStr, &context, &groupId, &remaining); err != nil {
		return nil, err
	}

	update := &types.TrackUpdate{
		Chain:       chain,
		Hash:        txHash,
		BlockHeight: blockHeight,
		Result:      types.TrackResult(result),
		Address:     address.String,
		Error:       errStr.String,
		GroupId:     groupId.String,
	}

	if context.Valid && context.String != "" {
		if err := json.Unmarshal([]byte(context.String), &update.Context); err != nil {
			return nil, err
		}
	}

	if remaining.Valid {
		r := int(remaining.Int64)
		update.Remaining = &r
	}

	return update, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
