// Package domain models parcel sensor data and the pure functions that
// reconcile it against shipment transit windows.
//
// # Data Source
//
// Temperature readings come from a single shared sensor feed. The feed is not
// partitioned by shipment: each poll returns the most recent reading, which
// the ingestion pipeline fans out to every shipment currently in transit.
// Which readings belong to which parcel is decided here, by comparing each
// reading's timestamp against the shipment's transit window.
//
// # Timestamp Conventions
//
// Feed, ledger and lifecycle timestamps are opaque strings in several
// encodings:
//
//	"2024-01-15T10:30:00Z"     ISO-8601 with a trailing UTC marker
//	"2024-01-15 10:30:00"      space-separated
//	"2567-01-15 10:30:00"      Buddhist-calendar year (Gregorian + 543)
//	"2024-01-15T10:30:00.250"  fractional seconds
//
// [Normalize] reduces all of them to epoch milliseconds by regex extraction of
// the calendar fields, read as naive wall-clock time. The "Z" suffix is
// stripped without a zone shift, so the first two examples above normalize to
// the same value. Years above 2500 are treated as Buddhist era and corrected
// by subtracting 543. Anything that cannot be read returns 0, the sentinel
// timestamp; windows never contain it and the matcher never matches it.
//
// "Now" is compared in the same naive encoding through [WallClockMillis],
// which callers feed with the current time in the sensor feed's zone.
//
// # Transit Windows
//
// A shipment's window is [shippedAt, deliveredAt], inclusive at both ends.
// An undelivered shipment's window is open-ended and closes at "now". A
// shipment without a ship time has no window. [FilterWindow] is pure and
// preserves input order; [SortSamples] applies the consumer's ordering.
//
// # Cross-Validation
//
// A local sample matches a ledger entry when the temperatures differ by less
// than 0.1° and the timestamps are within two minutes of each other, either
// directly or after shifting by seven hours in either direction. The shift
// absorbs a ledger stamped in local time (UTC+7) against samples stamped in
// UTC, or the reverse, without knowing which convention was used.
package domain
