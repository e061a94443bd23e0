// Package trace defines the execution snapshot model and its wire codec.
//
// # Overview
//
// A [Trace] is one captured step of a running program: the call stack
// ([Frame] values in call order), the heap (an id-keyed collection of
// [Entity] values iterated in ascending id order), and static variables.
// Every slot holds a [Value], a tagged union over null, void, long, double,
// boolean, string, char and reference. A reference holds the id of another
// entity, never the entity itself, and need not resolve: producers may emit
// references to entities that are not part of the snapshot.
//
// Entity bodies form a sealed sum type ([Object], [List], [Map]). Code that
// consumes bodies switches over all three variants:
//
//	switch b := e.Body.(type) {
//	case *trace.Object:
//	    // b.Fields
//	case *trace.List:
//	    // b.Items
//	case *trace.Map:
//	    // b.Pairs
//	}
//
// # Identity
//
// Entity ids are stable across snapshots of the same underlying object. The
// diff engine matches entities by id, and viewers key user position overrides
// by id, so producers must never recycle an id for a different object within
// a recording.
//
// # Change Flags
//
// [Value.Changed] is ephemeral. It is set in place by the diff package when
// a trace is ingested and is never encoded. Consumers must not read it before
// the diff pass for that trace has run.
//
// # Wire Format
//
// [Decode] and [Encode] use a JSON document with "frames", "heap" and an
// optional "statics" array:
//
//	{
//	  "frames": [{"name": "Main.main", "internal": false, "locals": [["x", ["LONG", 5]]]}],
//	  "heap": [
//	    {"id": 7, "label": "Node", "type": "OBJECT", "fields": [["next", ["REFERENCE", 8]]]},
//	    {"id": 8, "label": "int[]", "type": "LIST", "items": [["LONG", 1]]},
//	    {"id": 9, "label": "HashMap", "type": "MAP", "pairs": [[["STRING", "a"], ["LONG", 1]]]}
//	  ],
//	  "statics": [["Main.count", ["LONG", 3]]]
//	}
//
// A value tuple is [tag] for NULL and VOID and [tag, payload] otherwise. CHAR
// payloads are one-character strings (integer code points are accepted on
// input). Non-finite doubles are written as "NaN", "Infinity" or "-Infinity".
//
// Decoding fails fast with an [errors.ErrCodeInvalidFormat] error on missing
// required fields, unknown tags, malformed payloads and duplicate names or ids.
//
// [errors.ErrCodeInvalidFormat]: github.com/matzehuels/heapview/pkg/errors
package trace
