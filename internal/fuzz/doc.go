// Package fuzztests houses Go fuzz harnesses that feed arbitrary bytes to the
// .dspir decoder and push whatever decodes through validation, task lowering
// and C emission. The goal is to guard against panics and hangs on hostile
// module files.
//
// Not covered: corpus generation, file output, the CLI.
package fuzztests
