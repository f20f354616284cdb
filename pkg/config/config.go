package config

// CellSizeConfig is the terminal's per-cell pixel dimensions, either
// queried from the terminal (Auto) or pinned to an explicit fallback.
type CellSizeConfig struct {
	Auto   bool
	Width  int
	Height int
}

// Config is tupimage's full configuration surface (spec.md §6).
type Config struct {
	IDSubspace        string
	IDColorBits        int  // 0, 8, or 24
	IDUse3rdDiacritic  bool
	MaxIDsPerSubspace  int
	IDDatabaseDir      string

	CellSize        CellSizeConfig
	DefaultCellSize CellSizeConfig // used when CellSize.Auto fails, or when CellSize is neither auto nor a positive pair

	Scale   float64
	MaxRows int
	MaxCols int

	MaxCommandSize int

	NumTmuxLayers     int
	NumTmuxLayersAuto bool

	ReuploadMaxUploadsAgo int
	ReuploadMaxBytesAgo   int64
	ReuploadMaxSecondsAgo Duration
	ForceReupload         bool

	SupportedFormats     []string
	SupportedFormatsAuto bool
	UploadMethod         string // "auto", "direct", "file", "temp_file"

	CheckResponse        bool
	CheckResponseTimeout Duration

	StreamMaxSize int64
	FileMaxSize   int64
	MaxUploadSize int // max pixel dimension (w or h) after downsampling; 0 disables the cap

	FewerDiacritics bool
	PlaceholderChar string // empty selects the default marker rune
	Background      string // empty, "none", or a 6-hex-digit color
}
