package types

import (
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/teris-io/shortid"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex sub_0ujsswThIGTUYm2K8FjOOfXtY1K
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

// Entity ID prefixes.
const (
	UUIDPrefixUser         = "user"
	UUIDPrefixCategory     = "cat"
	UUIDPrefixService      = "svc"
	UUIDPrefixPlan         = "plan"
	UUIDPrefixSubscription = "sub"
	UUIDPrefixInstance     = "inst"
	UUIDPrefixTransaction  = "txn"
	UUIDPrefixCoupon       = "coup"
	UUIDPrefixRedemption   = "red"
)

var (
	sidGenerator *shortid.Shortid
	sidOnce      sync.Once
)

func initializeSID() {
	var err error
	sidGenerator, err = shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		panic("failed to initialize shortid generator: " + err.Error())
	}
}

// GenerateShortID returns a compact lowercase identifier suitable for DNS
// labels (subdomain suffixes). Falls back to a ULID fragment if the generator
// misbehaves.
func GenerateShortID() string {
	sidOnce.Do(initializeSID)

	id, err := sidGenerator.Generate()
	if err != nil || id == "" {
		id = GenerateUUID()
	}
	id = strings.ToLower(strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, id))
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}
