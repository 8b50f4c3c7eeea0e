package dirsrv

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	ruvGenerationToken = "replicageneration"
	ruvReplicaPrefix   = "replica "
)

// StatusTimeLayout is the timestamp format inside the replication status
// JSON blob.
const StatusTimeLayout = "2006-01-02T15:04:05Z"

// RuvKind discriminates the three RUV entry variants.
type RuvKind int

const (
	// RuvGeneration is the opaque replica generation marker.
	RuvGeneration RuvKind = iota
	// RuvBroken is a peer with no change timestamps: replication to it is
	// not progressing.
	RuvBroken
	// RuvInfo is a healthy peer record with last/first change identifiers.
	RuvInfo
)

// Ruv is one parsed replica update vector entry.
type Ruv struct {
	Kind RuvKind

	// Generation is set only for RuvGeneration.
	Generation string

	// ReplicaID and Server are set for RuvBroken and RuvInfo.
	ReplicaID int64
	Server    string

	// LastChange and FirstChange are set only for RuvInfo.
	LastChange  string
	FirstChange string
}

// Labels returns the metric label set for this entry. All variants emit the
// same keys so the resulting series stay dimensionally consistent.
func (r Ruv) Labels() map[string]string {
	switch r.Kind {
	case RuvGeneration:
		return map[string]string{"replicagen": r.Generation, "server": "", "last_change": "", "first_change": ""}
	case RuvBroken:
		return map[string]string{"replicagen": "", "server": r.Server, "last_change": "", "first_change": ""}
	default:
		return map[string]string{"replicagen": "", "server": r.Server, "last_change": r.LastChange, "first_change": r.FirstChange}
	}
}

// MetricReplicaID reports the peer id, or -1 for the generation marker.
func (r Ruv) MetricReplicaID() int64 {
	if r.Kind == RuvGeneration {
		return -1
	}
	return r.ReplicaID
}

// ParseRUV decodes one nsds50ruv value. The grammar is positional:
//
//	{replicageneration} <opaque>
//	{replica <id> <server>}
//	{replica <id> <server>} <lastChange> <firstChange>
//
// Any deviation is a hard failure quoting the offending input.
func ParseRUV(definition string) (Ruv, error) {
	definition = strings.TrimSpace(definition)

	open := strings.IndexByte(definition, '{')
	if open < 0 {
		return Ruv{}, fmt.Errorf("ruv %q: missing opening bracket", definition)
	}
	rest := definition[open+1:]

	closing := strings.IndexByte(rest, '}')
	if closing < 0 {
		return Ruv{}, fmt.Errorf("ruv %q: missing closing bracket", definition)
	}
	inner, tail := rest[:closing], rest[closing+1:]

	if inner == ruvGenerationToken {
		return Ruv{Kind: RuvGeneration, Generation: strings.TrimSpace(tail)}, nil
	}

	if !strings.HasPrefix(inner, ruvReplicaPrefix) {
		return Ruv{}, fmt.Errorf("ruv %q: missing replica declaration", definition)
	}

	idAndServer := inner[len(ruvReplicaPrefix):]
	id, server, ok := strings.Cut(idAndServer, " ")
	if !ok {
		return Ruv{}, fmt.Errorf("ruv %q: missing replica id", definition)
	}

	replicaID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Ruv{}, fmt.Errorf("ruv %q: parsing replica id: %w", definition, err)
	}
	server = strings.TrimSpace(server)

	tail = strings.TrimSpace(tail)
	if tail == "" {
		return Ruv{Kind: RuvBroken, ReplicaID: replicaID, Server: server}, nil
	}

	last, first, ok := strings.Cut(tail, " ")
	if !ok {
		return Ruv{}, fmt.Errorf("ruv %q: expected two change timestamps after bracket", definition)
	}
	return Ruv{
		Kind:        RuvInfo,
		ReplicaID:   replicaID,
		Server:      server,
		LastChange:  strings.TrimSpace(last),
		FirstChange: strings.TrimSpace(first),
	}, nil
}

// ChangesSent is one per-peer replayed/skipped counter pair from
// nsds5replicaChangesSentSinceStartup.
type ChangesSent struct {
	ReplicaID       int64
	ChangesReplayed uint64
	ChangesSkipped  uint64
}

// ParseChangesSent decodes space-separated "<id>:<sent>/<skipped>" tokens.
// Malformed tokens are skipped on purpose: the attribute is frequently
// truncated or garbled mid-token and the remaining pairs are still usable.
func ParseChangesSent(definition string) []ChangesSent {
	var out []ChangesSent
	for _, token := range strings.Split(definition, " ") {
		idPart, changes, ok := strings.Cut(token, ":")
		if !ok {
			continue
		}
		sentPart, skippedPart, ok := strings.Cut(changes, "/")
		if !ok {
			continue
		}

		id, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil {
			continue
		}
		sent, err := strconv.ParseUint(sentPart, 10, 64)
		if err != nil {
			continue
		}
		skipped, err := strconv.ParseUint(skippedPart, 10, 64)
		if err != nil {
			continue
		}

		out = append(out, ChangesSent{ReplicaID: id, ChangesReplayed: sent, ChangesSkipped: skipped})
	}
	return out
}

// Status is the decoded nsds5replicaLastUpdateStatusJSON blob.
type Status struct {
	State      string
	LdapRC     int64
	LdapRCText string
	ReplRC     int64
	ReplRCText string
	Date       time.Time
	Message    string
}

// intOrString tolerates numeric fields serialized either as JSON numbers or
// as quoted strings; the server emits both depending on version.
type intOrString int64

func (i *intOrString) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("numeric field %q: %w", string(data), err)
	}
	*i = intOrString(v)
	return nil
}

type statusJSON struct {
	State      string      `json:"state"`
	LdapRC     intOrString `json:"ldap_rc"`
	LdapRCText string      `json:"ldap_rc_text"`
	ReplRC     intOrString `json:"repl_rc"`
	ReplRCText string      `json:"repl_rc_text"`
	Date       string      `json:"date"`
	Message    string      `json:"message"`
}

// ParseStatusJSON decodes the replication agreement status attribute.
func ParseStatusJSON(raw string) (Status, error) {
	var s statusJSON
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Status{}, fmt.Errorf("status json %q: %w", raw, err)
	}

	date, err := time.Parse(StatusTimeLayout, s.Date)
	if err != nil {
		return Status{}, fmt.Errorf("status json date %q: %w", s.Date, err)
	}

	return Status{
		State:      s.State,
		LdapRC:     int64(s.LdapRC),
		LdapRCText: s.LdapRCText,
		ReplRC:     int64(s.ReplRC),
		ReplRCText: s.ReplRCText,
		Date:       date,
		Message:    s.Message,
	}, nil
}
