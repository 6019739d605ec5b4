package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// IR shape
	IRInfo           Code = 1000
	IRInvalid        Code = 1001
	IRUnboundName    Code = 1002
	IRDuplicateFunc  Code = 1003
	IRMalformedInput Code = 1004

	// target descriptor
	TargetInfo          Code = 2000
	TargetInvalid       Code = 2001
	TargetDuplicateType Code = 2002
	TargetWidthTooLarge Code = 2003
	TargetUnknownArch   Code = 2004

	// code generation
	CodegenInfo                 Code = 3000
	CodegenUnsupportedIntrinsic Code = 3001
	CodegenUnsupportedCast      Code = 3002
	CodegenNonNativeWidth       Code = 3003
	CodegenUnloweredTask        Code = 3004
	CodegenDynamicStack         Code = 3005
	CodegenUnsupportedNode      Code = 3006
	CodegenBadImmediate         Code = 3007

	// parallel task lowering
	LowerInfo               Code = 4000
	LowerUncapturable       Code = 4001
	LowerConflictingCapture Code = 4002
	LowerNameCollision      Code = 4003

	IOLoadFileError  Code = 5001
	IOWriteFileError Code = 5002

	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var (
	codeDescription = map[Code]string{
		UnknownCode:                 "Unknown error",
		IRInfo:                      "IR information",
		IRInvalid:                   "Malformed IR",
		IRUnboundName:               "Reference to an unbound name",
		IRDuplicateFunc:             "Duplicate function definition",
		IRMalformedInput:            "Module file cannot be decoded",
		TargetInfo:                  "Target information",
		TargetInvalid:               "Invalid target descriptor",
		TargetDuplicateType:         "Native vector type listed twice",
		TargetWidthTooLarge:         "Native vector wider than the target register",
		TargetUnknownArch:           "Unknown target architecture",
		CodegenInfo:                 "Code generation information",
		CodegenUnsupportedIntrinsic: "No intrinsic for operation, type and width",
		CodegenUnsupportedCast:      "Unsupported vector cast",
		CodegenNonNativeWidth:       "Vector width absent from the capability table",
		CodegenUnloweredTask:        "Parallel construct reached code generation",
		CodegenDynamicStack:         "Dynamic stack allocation",
		CodegenUnsupportedNode:      "Unsupported IR node",
		CodegenBadImmediate:         "Immediate does not fit its type",
		LowerInfo:                   "Task lowering information",
		LowerUncapturable:           "Closure variable cannot be captured",
		LowerConflictingCapture:     "Closure variable has conflicting types",
		LowerNameCollision:          "Synthesized function name collides",
		IOLoadFileError:             "I/O load file error",
		IOWriteFileError:            "I/O write file error",
		ObsInfo:                     "Observability information",
		ObsTimings:                  "Pipeline timings",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("IR%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("TGT%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("CG%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("LOW%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("IO%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
