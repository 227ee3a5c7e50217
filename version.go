package pmdhist

// BinaryGitHash is the Git hash of the source the binary was built from.
// It is set at build time with -ldflags.
var BinaryGitHash = "<unknown>"

// BinaryVersion is the incremental binary version number.
var BinaryVersion = 1
