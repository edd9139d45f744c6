package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache entry points. Each one keys a different payload shape.
const (
	EntryList       = "posts"
	EntryCount      = "count"
	EntryPost       = "post"
	EntryNaturalKey = "post_by_date"
	EntryArchive    = "archive"
)

// Namespace is the cache namespace holding every loader entry. Writes that
// can change any loaded result flush it.
const Namespace = "posts"

const (
	memberKeyJoiner   = "_"
	keyDigestBytes    = 16
	keyEntrySeparator = ":"
)

// canonicalConfig is the serialized form of a key. Field order is fixed
// and field names are sorted, so equal configs encode to equal bytes.
type canonicalConfig struct {
	Entry     string        `msgpack:"e"`
	HasTenant bool          `msgpack:"ht"`
	Tenant    int64         `msgpack:"t"`
	Fields    []string      `msgpack:"f"`
	Where     string        `msgpack:"w"`
	WhereArgs []interface{} `msgpack:"wa"`
	OrderBy   string        `msgpack:"o"`
	HasRange  bool          `msgpack:"hr"`
	Limit     int           `msgpack:"l"`
	Offset    int           `msgpack:"of"`
	Author    bool          `msgpack:"aa"`
	Files     bool          `msgpack:"af"`
	Tags      bool          `msgpack:"at"`
	Extra     []string      `msgpack:"x"`
}

// KeyFor returns the cache key of entry under cfg. extra carries
// entry-specific parameters such as a post id. Semantically equal configs
// give equal keys; textually different where fragments give different keys
// even when they mean the same thing.
func KeyFor(entry string, cfg QueryConfig, extra ...string) string {
	c := canonicalConfig{
		Entry:     entry,
		Fields:    cfg.Fields.Names(),
		Where:     cfg.Where,
		WhereArgs: cfg.WhereArgs,
		OrderBy:   cfg.OrderBy,
		Author:    cfg.loadsAuthor(),
		Files:     cfg.LoadFiles,
		Tags:      cfg.LoadTags,
		Extra:     extra,
	}
	if cfg.Tenant != nil {
		c.HasTenant = true
		c.Tenant = *cfg.Tenant
	}
	if cfg.Range != nil {
		c.HasRange = true
		c.Limit = cfg.Range.Limit
		c.Offset = cfg.Range.Offset
	}

	encoded, err := msgpack.Marshal(&c)
	if err != nil {
		// fall back to the printed form for args msgpack cannot encode
		c.WhereArgs = []interface{}{fmt.Sprintf("%#v", cfg.WhereArgs)}
		encoded, _ = msgpack.Marshal(&c)
	}
	sum := sha256.Sum256(encoded)
	return entry + keyEntrySeparator + hex.EncodeToString(sum[:keyDigestBytes])
}

// countKey keys a count on its projection only
func countKey(cfg QueryConfig) string {
	return KeyFor(EntryCount, cfg.countProjection())
}

// postKey keys a single post lookup by id
func postKey(cfg QueryConfig, id int64) string {
	return KeyFor(EntryPost, cfg, strconv.FormatInt(id, 10))
}

// naturalKey keys a lookup by the wall-clock month of date and shortname.
// loc is part of the key because stored dates are converted to it.
func naturalKey(cfg QueryConfig, loc *time.Location, date time.Time, shortname string) string {
	h := xxhash.New()
	_, _ = h.WriteString(date.Format(yearMonthLayout))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(shortname)
	return KeyFor(EntryNaturalKey, cfg, loc.String(), strconv.FormatUint(h.Sum64(), 16))
}

// archiveKey keys the archive summary of the tenant in loc
func archiveKey(cfg QueryConfig, loc *time.Location) string {
	return KeyFor(EntryArchive, QueryConfig{Tenant: cfg.Tenant}, loc.String())
}

// memberKey keys one post of a cached list
func memberKey(listKey string, id int64) string {
	return listKey + memberKeyJoiner + strconv.FormatInt(id, 10)
}
