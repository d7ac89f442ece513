// Package idxerr defines the error codes reported by the IDX2 encoder and
// decoder.
//
// Codes are comparable values that implement error. Callers wrap them with
// context using fmt.Errorf and match them with errors.Is:
//
//	return fmt.Errorf("file %s: %w", path, idxerr.FileNotFound)
//	...
//	if errors.Is(err, idxerr.FileNotFound) { ... }
package idxerr

// Code identifies a class of failure.
type Code int

const (
	BrickSizeNotPowerOfTwo Code = iota + 1
	BrickSizeTooBig
	TooManyLevels
	TooManyTransformPassesPerLevel
	TooManyBricksPerFile
	TooManyFilesPerDir
	NotSupportedInVersion
	CannotCreateDirectory
	SyntaxError
	TooManyBricksPerChunk
	TooManyChunksPerFile
	ChunksPerFileNotPowerOf2
	BricksPerChunkNotPowerOf2
	ChunkNotFound
	BrickNotFound
	FileNotFound
	UnsupportedScheme
	SizeMismatched
	InvalidArgument
)

var names = map[Code]string{
	BrickSizeNotPowerOfTwo:         "brick size not a power of two",
	BrickSizeTooBig:                "brick size too big",
	TooManyLevels:                  "too many levels",
	TooManyTransformPassesPerLevel: "too many transform passes per level",
	TooManyBricksPerFile:           "too many bricks per file",
	TooManyFilesPerDir:             "too many files per directory",
	NotSupportedInVersion:          "not supported in this version",
	CannotCreateDirectory:          "cannot create directory",
	SyntaxError:                    "syntax error",
	TooManyBricksPerChunk:          "too many bricks per chunk",
	TooManyChunksPerFile:           "too many chunks per file",
	ChunksPerFileNotPowerOf2:       "chunks per file not a power of two",
	BricksPerChunkNotPowerOf2:      "bricks per chunk not a power of two",
	ChunkNotFound:                  "chunk not found",
	BrickNotFound:                  "brick not found",
	FileNotFound:                   "file not found",
	UnsupportedScheme:              "unsupported scheme",
	SizeMismatched:                 "size mismatched",
	InvalidArgument:                "invalid argument",
}

func (c Code) Error() string {
	if s, ok := names[c]; ok {
		return "idx2: " + s
	}
	return "idx2: unknown error"
}
