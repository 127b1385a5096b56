/*
Package modcfg provides a typed, namespaced configuration store for mods
that share one host process.

# Overview

Every mod keeps its settings in its own namespace: a flat table of keys to
scalar values. Values carry a kind (string, int, float, double or bool)
and are stored in textual form, so a namespace saved to disk is readable
and hand-editable. Each namespace persists independently; a broken file
for one mod never keeps the others from loading.

# Basic Usage

The host creates one Store, loads what is on disk and hands each mod a
Handle bound to its namespace:

	store := modcfg.New(
	    modcfg.WithBackend(persist.NewDir("config", persist.JSON)),
	)
	report, err := store.LoadAll(ctx)
	if err != nil {
	    log.Fatal(err)
	}
	for ns, err := range report.Failed {
	    log.Printf("skipped %s: %v", ns, err)
	}

	audio, err := store.Namespace("audio")
	if err != nil {
	    log.Fatal(err)
	}
	volume, err := audio.GetInt("volume", 10)

# Typed Reads

A read names the kind it expects. If the key is missing, or holds a value
of another kind, the caller's default comes back:

	audio.SetString("volume", "loud")
	v, _ := audio.GetInt("volume", 10) // 10: the stored value is a string

A value whose kind matches but whose text does not parse is corruption,
not absence, and is reported as a *CorruptValueError rather than hidden
behind the default.

# Change Notification

Listeners subscribe per namespace and receive every Set:

	sub := audio.OnChange(func(c modcfg.Change) {
	    if c.Key == "volume" {
	        mixer.SetVolume(c.Value)
	    }
	})
	defer sub.Unsubscribe()

Listeners run synchronously, in the order they subscribed. A listener may
write to the store; the write takes effect at once and its own
notification is delivered after the current one. A panicking listener is
logged and skipped.

# Persistence

Backends live in the persist package: a directory with one JSON or YAML
file per namespace, a single SQLite database, or memory. SaveNamespace
writes one namespace in insertion order; LoadNamespace replaces one
namespace wholesale and installs nothing on failure. Reload does the same
and then notifies listeners of what changed, and WatchDir calls Reload
whenever a file in a directory backend is edited.

# Thread Safety

Store and Handle are safe for concurrent use. Each namespace has its own
lock, so mods writing to different namespaces do not contend.
*/
package modcfg
