package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots for the shading service.
//
// Per-blind topics hang under a configurable prefix:
//
//	{prefix}/{blind}/set             inbound event, payload is the level or JSON
//	{prefix}/{blind}/set/{keyword}   inbound event with a topic keyword (e.g. resetOverwrite)
//	{prefix}/{blind}/command         outbound blind command
//	{prefix}/{blind}/status          outbound retained state and status
const (
	// DefaultPrefix is used when shading.topic_prefix is empty.
	DefaultPrefix = "graylogic/shading"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics builds the MQTT topics for one topic prefix.
//
//	topics := mqtt.NewTopics("graylogic/shading")
//	topics.Command("office") // graylogic/shading/office/command
type Topics struct {
	prefix string
}

// NewTopics returns builders rooted at prefix. Trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root all per-blind topics hang under.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultPrefix
	}
	return t.prefix
}

// Set returns the inbound event topic for a blind.
//
// Example: graylogic/shading/office/set
func (t Topics) Set(blind string) string {
	return fmt.Sprintf("%s/%s/set", t.Prefix(), blind)
}

// SetKeyword returns the inbound event topic carrying a keyword.
//
// Example: graylogic/shading/office/set/resetOverwrite
func (t Topics) SetKeyword(blind, keyword string) string {
	return fmt.Sprintf("%s/%s/set/%s", t.Prefix(), blind, keyword)
}

// Command returns the outbound command topic for a blind.
//
// Example: graylogic/shading/office/command
func (t Topics) Command(blind string) string {
	return fmt.Sprintf("%s/%s/command", t.Prefix(), blind)
}

// Status returns the retained status topic for a blind.
//
// Example: graylogic/shading/office/status
func (t Topics) Status(blind string) string {
	return fmt.Sprintf("%s/%s/status", t.Prefix(), blind)
}

// AllSets returns the pattern matching plain set topics for every blind.
//
// Pattern: graylogic/shading/+/set
func (t Topics) AllSets() string {
	return t.Prefix() + "/+/set"
}

// AllSetKeywords returns the pattern matching keyword set topics.
//
// Pattern: graylogic/shading/+/set/+
func (t Topics) AllSetKeywords() string {
	return t.Prefix() + "/+/set/+"
}

// SystemStatus returns the service status topic (also the LWT topic).
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// ParseSet splits an inbound set topic into blind name and keyword.
// The keyword is empty for the plain set topic. ok is false when the topic
// does not belong to this prefix or is not a set topic.
func (t Topics) ParseSet(topic string) (blind, keyword string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix()+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == "set" && parts[0] != "":
		return parts[0], "", true
	case len(parts) == 3 && parts[1] == "set" && parts[0] != "" && parts[2] != "":
		return parts[0], parts[2], true
	default:
		return "", "", false
	}
}

// HasWildcard reports whether topic contains an MQTT wildcard.
func HasWildcard(topic string) bool {
	return strings.ContainsAny(topic, "+#")
}
