package indexdb

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/contrib/log"
)

// ErrUnknownType is returned by Create for a db type no driver registered.
var ErrUnknownType = errors.New("unknown indexdb type")

var drivers = struct {
	sync.RWMutex
	factories map[string]storage.IndexDBFactory
}{factories: make(map[string]storage.IndexDBFactory)}

// Register makes a driver available to Create under name. Drivers register
// from their package init; registering a name twice panics.
func Register(name string, factory storage.IndexDBFactory) {
	drivers.Lock()
	defer drivers.Unlock()

	name = strings.ToLower(name)
	if _, dup := drivers.factories[name]; dup {
		panic("indexdb: driver " + name + " registered twice")
	}
	drivers.factories[name] = factory
}

// Types returns the registered driver names, sorted.
func Types() []string {
	drivers.RLock()
	defer drivers.RUnlock()

	names := lo.Keys(drivers.factories)
	slices.Sort(names)
	return names
}

// Create opens an index of the named type at option.DBPath().
func Create(name string, option storage.Option) (storage.IndexDB, error) {
	drivers.RLock()
	factory, ok := drivers.factories[strings.ToLower(name)]
	drivers.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q, have %v", ErrUnknownType, name, Types())
	}

	log.Debugf("open %s indexdb at %s", name, option.DBPath())
	return factory(option.DBPath(), option)
}
