// Package testutil provides shared test helpers and fixtures for meterelf-store.
//
// Philosophy:
// - Prefer a real SQLite value database (no mocks) for correctness.
// - Fake the external meter reader, never the store.
// - Register cleanup via t.Cleanup so tests stay leak-free.
//
// Most packages should start with:
//
//	database := testutil.NewTestDB(t)
//	testutil.MakeEntries(t, database, testutil.Reading("20181005120000-00.jpg", 253.623))
package testutil
