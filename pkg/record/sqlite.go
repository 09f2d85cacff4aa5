// Package record holds the persistence collaborators: a sqlite frame
// recorder and gob state save/restore. The engine core knows nothing of
// either; both consume snapshots.
package record

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/LindonKelley/newtonian-gravity/pkg/simulation"
)

/*
really only 1 writer is useful for sqlite since it allows only 1 writer
at a time, but the channel/WaitGroup shape keeps the recorder
interchangeable with other sinks.
*/

const schema = `
CREATE TABLE bodies (
	tick 	INTEGER,
	id 		INTEGER, -- body id
	x 		REAL,
	y 		REAL,
	vx 		REAL,
	vy 		REAL,
	mass 	REAL,
	radius 	REAL);
`

const indices = `
CREATE INDEX idx_tick ON bodies (tick, id);
CREATE INDEX idx_id ON bodies (id);
CREATE INDEX idx_mass ON bodies (mass);
`

const insert = `INSERT INTO bodies VALUES (?, ?, ?, ?, ?, ?, ?, ?);`
const queryTick = `SELECT id, x, y, vx, vy, mass, radius FROM bodies WHERE tick = ? ORDER BY id ASC;`

// DB records simulation frames into a sqlite database.
type DB struct {
	db *sql.DB
}

// Open creates and initializes a frame database at filename. Refuses to
// touch an existing file. ":memory:" works for tests.
func Open(filename string) (*DB, error) {
	if filename != ":memory:" {
		if _, err := os.Stat(filename); err == nil {
			return nil, fmt.Errorf("%s exists", filename)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+filename+"?_journal_mode=OFF&_synchronous=OFF")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

// CreateIndices builds the query indices. Deferred until after the run
// so inserts stay cheap.
func (d *DB) CreateIndices() error {
	_, err := d.db.Exec(indices)
	return err
}

func (d *DB) Close() error {
	return d.db.Close()
}

// WriteFrames drains frames into the database, one transaction per
// snapshot. Meant to run as a goroutine alongside Simulator.Run;
// returns when the channel closes or the first write fails.
func (d *DB) WriteFrames(frames <-chan simulation.Snapshot) error {
	stmt, err := d.db.Prepare(insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for snap := range frames {
		tx, err := d.db.Begin()
		if err != nil {
			return err
		}
		for _, b := range snap.Bodies {
			_, err = stmt.Exec(
				snap.Tick,
				b.ID,
				b.Pos[0],
				b.Pos[1],
				b.Vel[0],
				b.Vel[1],
				b.Mass,
				b.Radius)
			if err != nil {
				break
			}
		}
		if err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Frame reads back the bodies recorded for one tick, in id order.
func (d *DB) Frame(tick uint64) ([]simulation.Particle, error) {
	rows, err := d.db.Query(queryTick, tick)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bodies []simulation.Particle
	for rows.Next() {
		var p simulation.Particle
		err = rows.Scan(&p.ID, &p.Pos[0], &p.Pos[1], &p.Vel[0], &p.Vel[1], &p.Mass, &p.Radius)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, p)
	}
	return bodies, rows.Err()
}
