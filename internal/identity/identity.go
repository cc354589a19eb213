// Package identity canonicalizes spell identifiers. Persisted metadata is
// always keyed by the canonical (source-library) uuid so an embedded actor
// copy and its compendium original share one record.
package identity

import (
	"context"
	"strings"

	"github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
)

// Canonicalize returns the source uuid for an embedded copy, or the input
// uuid when it already refers to a library entry or cannot be resolved from
// loaded documents. Idempotent: a canonical uuid resolves to itself.
func Canonicalize(resolver host.UUIDResolver, uuid string) string {
	spell, ok := resolver.ResolveUUIDSync(uuid)
	if !ok {
		return uuid
	}
	if spell.SourceUUID != "" {
		return spell.SourceUUID
	}
	return uuid
}

// CanonicalizeCtx is the async variant: it may load from compendia.
// Unresolvable uuids pass through unchanged; only transient resolver
// failures surface as errors.
func CanonicalizeCtx(ctx context.Context, resolver host.UUIDResolver, uuid string) (string, error) {
	spell, err := resolver.ResolveUUID(ctx, uuid)
	if err != nil {
		if errors.IsNotFound(err) {
			return uuid, nil
		}
		return "", errors.Wrapf(err, "failed to resolve uuid '%s'", uuid)
	}
	if spell.SourceUUID != "" {
		return spell.SourceUUID, nil
	}
	return uuid, nil
}

// CanonicalizeSpell returns the canonical uuid of an already-loaded spell.
func CanonicalizeSpell(spell *host.Spell) string {
	if spell.SourceUUID != "" {
		return spell.SourceUUID
	}
	return spell.UUID
}

// CanonicalizeItem returns the canonical uuid of an embedded spell item.
func CanonicalizeItem(item *host.SpellItem) string {
	if item.SourceUUID != "" {
		return item.SourceUUID
	}
	return item.UUID
}

// ClassSpellKey builds the "classId:uuid" entry stored in the per-class
// preparation flag.
func ClassSpellKey(classID, uuid string) string {
	return classID + ":" + uuid
}

// ParseClassSpellKey splits a class-spell key. The uuid itself may contain
// colons, so only the first separator counts.
func ParseClassSpellKey(key string) (classID, uuid string, ok bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// StripClassPrefix returns the uuid portion of a class-spell key, or the key
// unchanged when it carries no prefix.
func StripClassPrefix(key string) string {
	if _, uuid, ok := ParseClassSpellKey(key); ok {
		return uuid
	}
	return key
}
