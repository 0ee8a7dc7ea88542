package merscope

// File and column names of a MERSCOPE output directory.
const (
	CountsFile         = "cell_by_gene.csv"
	CellMetadataFile   = "cell_metadata.csv"
	BoundariesFile     = "cell_boundaries.parquet"
	TranscriptsFile    = "detected_transcripts.csv"
	ImagesDir          = "images"
	TransformationFile = "micron_to_mosaic_pixel_transform.csv"

	// VPT (vizgen post-processing tool) boundary candidates, in priority order.
	CellposeBoundaries  = "cellpose_micron_space.parquet"
	WatershedBoundaries = "watershed_micron_space.parquet"

	// Keys of an explicit VPT file mapping.
	VPTNameCounts     = "cell_by_gene"
	VPTNameObs        = "cell_metadata"
	VPTNameBoundaries = "cell_boundaries"

	GlobalX      = "global_x"
	GlobalY      = "global_y"
	GlobalZ      = "global_z"
	Gene         = "gene"
	InstanceKey  = "EntityID"
	CountsCellID = "cell"
	CellX        = "center_x"
	CellY        = "center_y"
	ZIndex       = "ZIndex"

	RegionKey = "region"
	// PixelSpace is the coordinate system every MERSCOPE layer is registered to.
	PixelSpace = "pixels"
	// ShapesLayer names the boundary polygon layer.
	ShapesLayer = "polygons"
)
