package model

import (
	"strconv"
	"strings"
)

// Key identifies the unit a batch characteristic is reported for: an
// activity, or an (activity, resource) pair in resource-aware mode.
type Key struct {
	Activity string
	Resource string
}

// KeyOf returns the key of an instance.
func KeyOf(in *Instance, resourceAware bool) Key {
	if resourceAware {
		return Key{Activity: in.Activity, Resource: in.Resource}
	}
	return Key{Activity: in.Activity}
}

// String renders the key as "activity" or "activity|resource". A name
// containing '|' or '"' is quoted, so distinct keys never render alike.
func (k Key) String() string {
	if k.Resource == "" {
		return keyPart(k.Activity)
	}
	return keyPart(k.Activity) + "|" + keyPart(k.Resource)
}

func keyPart(s string) string {
	if strings.ContainsAny(s, `|"`) {
		return strconv.Quote(s)
	}
	return s
}

// Less orders keys by activity, then resource.
func (k Key) Less(o Key) bool {
	if k.Activity != o.Activity {
		return k.Activity < o.Activity
	}
	return k.Resource < o.Resource
}
