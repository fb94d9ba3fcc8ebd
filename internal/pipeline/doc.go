// Package pipeline ingests untrusted files, proves what they are, and
// normalizes them into a canonical safe form.
//
// This package is the system's one true trust boundary. Every byte it
// receives is hostile until a Strategy has content-sniffed the real
// type, validated the structure, and fully decoded and re-encoded the
// payload. Original upload bytes are never forwarded: only regenerated
// canonical bytes move downstream, which makes metadata payloads and
// malformed structural edge cases architecturally impossible to carry
// through, rather than merely scanned for.
//
// # Architecture
//
// The pipeline is a chain of pure transformations over an immutable
// [FileContext]:
//
//	raw source → entry adapter → Payload → FileContext (claimed)
//	  → Strategy.Prove (sniff, validate, decode/re-encode, hash)
//	  → Strategy.Normalize (commit canonical form)
//	  → Policy filters (business rejection rules)
//	  → VariantProfile transformer chains (derived artifacts)
//	  → Store.Write + RecordStore.Save (persist, atomically)
//
// Each stage consumes one context and produces the next; no stage
// holds a reference to a context after handing off its successor, so
// independent uploads and independent variant chains parallelize
// freely.
//
// # Strategies
//
// One Strategy covers one file family. Strategies register at init
// time via [RegisterStrategy] and are selected per [Policy], never by
// filename extension:
//
//	pipeline.RegisterStrategy("image", func(opts pipeline.Options) pipeline.Strategy {
//	    return pipeline.NewImageStrategy(opts)
//	})
//
// # Policies
//
// A [Policy] binds a use case to a strategy family, MIME allow-list,
// filter chain, variant set, and storage target. Options deep-merge
// defaults under overrides, and [Policy.With] copies rather than
// mutates, so partial overrides compose predictably.
//
// # Error Handling
//
// Every prove/normalize failure is a terminal rejection of that
// specific upload — never retried, never silently substituted.
// [MapError] converts internal errors to user-facing messages with
// stable support codes (ENT, SIZ, SPF, STR, DEC, POL, STO).
package pipeline
