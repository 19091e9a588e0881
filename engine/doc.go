// Package engine runs UI scripts in a sandboxed Lua interpreter. Each
// lifecycle call builds a fresh session: the interpreter starts empty,
// filesystem/process/module capabilities are stripped, the script's
// top-level code runs once, and exactly one of init, view or update is
// invoked with JSON-marshaled arguments. Sessions never outlive a call,
// so scripts cannot accumulate global state between invocations.
//
// Every entry point takes a wall-clock budget. The interpreter checks
// the budget at instruction granularity and aborts the script with a
// timeout error the first time it is exceeded.
package engine
