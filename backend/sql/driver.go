//
// copywrong you're mom 2015
//

// package sql implements key and whitelist storage over sqlite, mysql or
// postgres
package sql

import (
	"database/sql"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/majestrate/kasumi/backend"
	"github.com/majestrate/kasumi/config"
	"github.com/majestrate/kasumi/tracker/models"
)

type sqlDriver struct {
	// name of the database/sql driver to open with
	driverName string
}

type Store struct {
	// database connection
	conn *sqlx.DB
}

var cfg_version = "kasumi.version"

// what database version are we at
func (s *Store) Version() (version string, err error) {
	err = s.conn.QueryRow(s.conn.Rebind("SELECT val FROM config WHERE key = ?"), cfg_version).Scan(&version)
	if err == sql.ErrNoRows {
		err = nil
	}
	return
}

func (s *Store) setVersion(version string) (err error) {
	_, err = s.conn.Exec(s.conn.Rebind("DELETE FROM config WHERE key = ?"), cfg_version)
	if err == nil {
		_, err = s.conn.Exec(s.conn.Rebind("INSERT INTO config(key, val) VALUES(?, ?)"), cfg_version, version)
	}
	return
}

// create initial version 0 tables
func (s *Store) InitTables() (err error) {
	_, err = s.conn.Exec("CREATE TABLE IF NOT EXISTS config(key VARCHAR(255) PRIMARY KEY, val VARCHAR(255) NOT NULL)")
	if err == nil {
		var version string
		version, err = s.Version()
		if len(version) == 0 {
			err = s.setVersion("0")
		}
	}
	return
}

// return true if the version string is the latest version
func (s *Store) LatestVersion(version string) (latest bool) {
	latest = version == "1"
	return
}

// upgrade to the next database version given the current version
func (s *Store) UpgradeToNext(version string) (err error) {
	glog.Infof("upgrade database at version %s to next version", version)

	table_defs := make(map[string]string)
	table_order := []string{}
	next_version := ""

	if version == "0" {
		// migrate to version 1
		next_version = "1"
		table_defs["keys"] = `(
                            key VARCHAR(32) PRIMARY KEY,
                            valid_until BIGINT NOT NULL
                          )`

		table_defs["whitelist"] = `(
                                 info_hash VARCHAR(40) PRIMARY KEY
                               )`

		table_order = append(table_order, "keys")
		table_order = append(table_order, "whitelist")
	} else {
		// invalid version
		return errors.Errorf("invalid database version %q", version)
	}

	glog.Infof("create %d tables", len(table_order))
	for _, t := range table_order {
		q := "CREATE TABLE IF NOT EXISTS " + t + table_defs[t]
		glog.V(1).Infof(">> %s", q)
		_, err = s.conn.Exec(q)
		if err != nil {
			return errors.Wrapf(err, "create table %s", t)
		}
	}
	err = s.setVersion(next_version)
	return
}

// run all migrations
func (s *Store) Migrate() (err error) {
	var version string
	// ensure initial tables
	err = s.InitTables()
	version, err = s.Version()
	// do migrations
	for err == nil && !s.LatestVersion(version) {
		if err == nil {
			err = s.UpgradeToNext(version)
		}
		version, err = s.Version()
	}
	return
}

// close connection to database
func (s *Store) Close() (err error) {
	err = s.conn.Close()
	return
}

// ping backend
func (s *Store) Ping() (err error) {
	err = s.conn.Ping()
	return
}

func (s *Store) InsertKey(key models.Key) (err error) {
	_, err = s.conn.Exec(s.conn.Rebind("DELETE FROM keys WHERE key = ?"), key.Key)
	if err == nil {
		_, err = s.conn.Exec(s.conn.Rebind("INSERT INTO keys(key, valid_until) VALUES(?, ?)"), key.Key, key.ValidUntil)
	}
	if err != nil {
		err = errors.Wrap(err, "insert key")
	}
	return
}

func (s *Store) GetKey(key string) (k models.Key, err error) {
	err = s.conn.Get(&k, s.conn.Rebind("SELECT key, valid_until FROM keys WHERE key = ? LIMIT 1"), key)
	if err == sql.ErrNoRows {
		err = models.ErrUnknownKey
	} else if err != nil {
		err = errors.Wrap(err, "get key")
	}
	return
}

func (s *Store) DeleteKey(key string) (err error) {
	_, err = s.conn.Exec(s.conn.Rebind("DELETE FROM keys WHERE key = ?"), key)
	if err != nil {
		err = errors.Wrap(err, "delete key")
	}
	return
}

func (s *Store) LoadKeys() (keys []models.Key, err error) {
	err = s.conn.Select(&keys, "SELECT key, valid_until FROM keys")
	if err != nil {
		err = errors.Wrap(err, "load keys")
	}
	return
}

func (s *Store) InsertInfohash(ih models.InfoHash) (err error) {
	var count int64
	err = s.conn.QueryRow(s.conn.Rebind("SELECT COUNT(*) FROM whitelist WHERE info_hash = ?"), ih.String()).Scan(&count)
	if err == nil && count == 0 {
		_, err = s.conn.Exec(s.conn.Rebind("INSERT INTO whitelist(info_hash) VALUES(?)"), ih.String())
	}
	if err != nil {
		err = errors.Wrap(err, "insert infohash")
	}
	return
}

func (s *Store) DeleteInfohash(ih models.InfoHash) (err error) {
	_, err = s.conn.Exec(s.conn.Rebind("DELETE FROM whitelist WHERE info_hash = ?"), ih.String())
	if err != nil {
		err = errors.Wrap(err, "delete infohash")
	}
	return
}

func (s *Store) LoadInfohashes() (hashes []models.InfoHash, err error) {
	var rendered []string
	err = s.conn.Select(&rendered, "SELECT info_hash FROM whitelist")
	if err != nil {
		err = errors.Wrap(err, "load whitelist")
		return
	}
	for _, hexhash := range rendered {
		ih, parseErr := models.InfoHashFromHex(hexhash)
		if parseErr != nil {
			// a row we did not write; skip it
			glog.Errorf("whitelist row is not a valid info hash: %q", hexhash)
			continue
		}
		hashes = append(hashes, ih)
	}
	return
}

// create a new sql-backed store
func (d *sqlDriver) New(cfg *config.DriverConfig) (c backend.Conn, err error) {
	if cfg.DSN == "" {
		err = config.ErrMissingRequiredParam
		return
	}
	store := new(Store)
	store.conn, err = sqlx.Open(d.driverName, cfg.DSN)
	if err == nil {
		// do all migrations
		err = store.Migrate()
		if err == nil {
			c = store
		} else {
			// migration failed, close the database connection
			store.Close()
			glog.Error("migration failed ", err)
		}
	}
	return
}

func init() {
	backend.Register("sqlite", &sqlDriver{driverName: "sqlite3"})
	backend.Register("mysql", &sqlDriver{driverName: "mysql"})
	backend.Register("postgres", &sqlDriver{driverName: "postgres"})
}
