package record

import (
	"encoding/gob"
	"os"

	"github.com/LindonKelley/newtonian-gravity/pkg/simulation"
)

/*

helpers to save and restore simulation state

*/

// SaveState writes a snapshot to filename as a gob. The partial file is
// removed on encode failure.
func SaveState(filename string, snap simulation.Snapshot) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		os.Remove(filename)
		return err
	}
	return nil
}

// LoadState reads a snapshot previously written by SaveState. Its
// bodies can seed a new simulator.
func LoadState(filename string) (simulation.Snapshot, error) {
	file, err := os.Open(filename)
	if err != nil {
		return simulation.Snapshot{}, err
	}
	defer file.Close()

	var snap simulation.Snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return simulation.Snapshot{}, err
	}
	return snap, nil
}
