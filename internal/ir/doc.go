// Package ir defines the deterministic value representation used to record
// chain runs.
//
// Operations exchange arbitrary Go values; ir turns them into a small
// sealed set of JSON-shaped values (null, string, int, bool, array,
// object) so stored traces, golden files and definition hashes are
// byte-stable. Key constraints:
//   - no float type: Snapshot renders whole floats as ints and the rest as
//     strings
//   - strings are NFC normalized at the serialization boundary
//   - object keys are ordered by UTF-16 code units (RFC 8785)
package ir
