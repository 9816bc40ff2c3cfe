package storage

import (
	"fmt"

	"living-persona/datastore"
	"living-persona/internal/mind"

	"github.com/rs/zerolog"
)

const (
	keyLife       = "life"
	prefixUser    = "user:"
	prefixHistory = "history:"
)

// JSON keeps everything in one datastore file.
type JSON struct {
	ds *datastore.DataStore
}

// OpenJSON opens or creates the store file at path.
func OpenJSON(path string, log zerolog.Logger) (*JSON, error) {
	cfg := datastore.DefaultConfig(path)
	cfg.Logger = log
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: open json: %w", err)
	}
	return &JSON{ds: ds}, nil
}

func (j *JSON) load(key string, out any) error {
	ok, err := j.ds.Get(key, out)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(key)
	}
	return nil
}

func (j *JSON) LoadLife() (mind.LifeState, error) {
	var s mind.LifeState
	err := j.load(keyLife, &s)
	return s, err
}

func (j *JSON) SaveLife(s mind.LifeState) error { return j.ds.Put(keyLife, s) }

func (j *JSON) LoadRelationship(userID string) (mind.Relationship, error) {
	var r mind.Relationship
	err := j.load(prefixUser+userID, &r)
	return r, err
}

func (j *JSON) SaveRelationship(r mind.Relationship) error {
	return j.ds.Put(prefixUser+r.UserID, r)
}

func (j *JSON) LoadHistory(userID string) ([]mind.Utterance, error) {
	var h []mind.Utterance
	err := j.load(prefixHistory+userID, &h)
	return h, err
}

func (j *JSON) SaveHistory(userID string, h []mind.Utterance) error {
	return j.ds.Put(prefixHistory+userID, h)
}

func (j *JSON) Users() ([]string, error) {
	keys := j.ds.Keys(prefixUser)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k[len(prefixUser):])
	}
	return out, nil
}

// Forget removes the user's records and writes the file right away, so the
// deletion does not wait for the next autosave.
func (j *JSON) Forget(userID string) error {
	j.ds.Delete(prefixUser + userID)
	j.ds.Delete(prefixHistory + userID)
	return j.ds.Flush()
}

func (j *JSON) Close() error { return j.ds.Close() }
