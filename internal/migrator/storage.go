package migrator

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Ledger reads and appends migration history. It owns no policy.
type Ledger interface {
	// FetchApplied returns every entry ordered by ascending version.
	FetchApplied(ctx context.Context) ([]LedgerEntry, error)
	// Append inserts exactly one entry.
	Append(ctx context.Context, e LedgerEntry) error
}

// Storage is the Ledger kept in a table reachable through a Session.
type Storage struct {
	Session Session
	Table   string
}

func (s *Storage) FetchApplied(ctx context.Context) ([]LedgerEntry, error) {
	rows, err := s.Session.Execute(ctx, fmt.Sprintf(`SELECT version, name, type, checksum, installed_on, execution_time, success FROM %s`, s.Table))
	if err != nil {
		return nil, &LedgerAccessError{Op: "fetch", Table: s.Table, Err: err}
	}
	out := make([]LedgerEntry, 0, len(rows))
	for i, r := range rows {
		e, err := entryFromRow(r)
		if err != nil {
			return nil, &LedgerAccessError{Op: "decode", Table: s.Table, Err: fmt.Errorf("row %d: %w", i, err)}
		}
		out = append(out, e)
	}
	// a full table scan has no defined order on a partitioned store
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *Storage) Append(ctx context.Context, e LedgerEntry) error {
	_, err := s.Session.Execute(ctx, fmt.Sprintf(`INSERT INTO %s (version, name, type, checksum, installed_on, execution_time, success) VALUES (?, ?, ?, ?, ?, ?, ?)`, s.Table),
		e.Version, e.Name, string(e.Type), e.Checksum, e.InstalledOn, e.ExecutionTime, e.Success,
	)
	if err != nil {
		return &LedgerAccessError{Op: "append", Table: s.Table, Err: err}
	}
	return nil
}

func entryFromRow(r map[string]any) (LedgerEntry, error) {
	var e LedgerEntry
	var err error
	if e.Version, err = asInt64(r["version"]); err != nil {
		return e, fmt.Errorf("version: %w", err)
	}
	e.Name = asString(r["name"])
	e.Type = Type(asString(r["type"]))
	e.Checksum = asString(r["checksum"])
	if e.InstalledOn, err = asTime(r["installed_on"]); err != nil {
		return e, fmt.Errorf("installed_on: %w", err)
	}
	if e.ExecutionTime, err = asInt64(r["execution_time"]); err != nil {
		return e, fmt.Errorf("execution_time: %w", err)
	}
	if e.Success, err = asBool(r["success"]); err != nil {
		return e, fmt.Errorf("success: %w", err)
	}
	return e, nil
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

func asBool(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(x)))
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	}
	n, err := asInt64(v)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func asTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x, nil
	case []byte:
		return parseTime(string(x))
	case string:
		return parseTime(x)
	case int64:
		return time.UnixMilli(x), nil
	}
	return time.Time{}, fmt.Errorf("unsupported type %T", v)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
