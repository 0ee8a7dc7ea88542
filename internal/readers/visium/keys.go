package visium

// Space Ranger output layout.
const (
	CountsFile        = "filtered_feature_bc_matrix.h5"
	SpatialDir        = "spatial"
	PositionsFile     = "tissue_positions.csv"
	PositionsListFile = "tissue_positions_list.csv"
	ScaleFactorsFile  = "scalefactors_json.json"
	HiresImageFile    = "tissue_hires_image.png"
	LowresImageFile   = "tissue_lowres_image.png"
)

// Table keys.
const (
	RegionKey   = "library_id"
	InstanceKey = "visium_spot_id"
)

var positionColumns = []string{
	"barcode",
	"in_tissue",
	"array_row",
	"array_col",
	"pxl_row_in_fullres",
	"pxl_col_in_fullres",
}
