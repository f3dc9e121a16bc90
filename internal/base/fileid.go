package base

// BucketCount is the number of partitions a bucketed table is split into.
// Every bucketed FileSet holds exactly this many streams.
const BucketCount = 64

// K is the plot space parameter encoded into the plot header.
const K = 32

// FileID identifies one logical table of the plotting pipeline. Each id maps
// to exactly one FileSet in the registry.
type FileID uint8

const (
	Y0 FileID = iota
	Y1
	MetaA0
	MetaA1
	MetaB0
	MetaB1
	X
	F7
	T2L
	T2R
	T3L
	T3R
	T4L
	T4R
	T5L
	T5R
	T6L
	T6R
	T7L
	T7R
	SortKey2
	SortKey3
	SortKey4
	SortKey5
	SortKey6
	SortKey7
	Map2
	Map3
	Map4
	Map5
	Map6
	Map7
	MarkedEntries2
	MarkedEntries3
	MarkedEntries4
	MarkedEntries5
	MarkedEntries6
	Plot

	FileIDCount
)

var fileIDNames = [FileIDCount]string{
	Y0:             "Y0",
	Y1:             "Y1",
	MetaA0:         "META_A_0",
	MetaA1:         "META_A_1",
	MetaB0:         "META_B_0",
	MetaB1:         "META_B_1",
	X:              "X",
	F7:             "F7",
	T2L:            "T2_L",
	T2R:            "T2_R",
	T3L:            "T3_L",
	T3R:            "T3_R",
	T4L:            "T4_L",
	T4R:            "T4_R",
	T5L:            "T5_L",
	T5R:            "T5_R",
	T6L:            "T6_L",
	T6R:            "T6_R",
	T7L:            "T7_L",
	T7R:            "T7_R",
	SortKey2:       "SORT_KEY2",
	SortKey3:       "SORT_KEY3",
	SortKey4:       "SORT_KEY4",
	SortKey5:       "SORT_KEY5",
	SortKey6:       "SORT_KEY6",
	SortKey7:       "SORT_KEY7",
	Map2:           "MAP2",
	Map3:           "MAP3",
	Map4:           "MAP4",
	Map5:           "MAP5",
	Map6:           "MAP6",
	Map7:           "MAP7",
	MarkedEntries2: "MARKED_ENTRIES_2",
	MarkedEntries3: "MARKED_ENTRIES_3",
	MarkedEntries4: "MARKED_ENTRIES_4",
	MarkedEntries5: "MARKED_ENTRIES_5",
	MarkedEntries6: "MARKED_ENTRIES_6",
	Plot:           "PLOT",
}

func (id FileID) String() string {
	if id < FileIDCount {
		return fileIDNames[id]
	}
	return "INVALID"
}

// TableFile describes one file set: its id, the display name used for path
// construction, and how many bucket streams it holds.
type TableFile struct {
	ID      FileID
	Name    string
	Buckets uint
}

// Catalog returns the ordered list of file sets the queue initializes at
// construction. The plot file is absent; it is opened later through
// OpenPlotFile with a caller-supplied name.
func Catalog() []TableFile {
	return []TableFile{
		{Y0, "y0", BucketCount},
		{Y1, "y1", BucketCount},
		{MetaA0, "meta_a0", BucketCount},
		{MetaA1, "meta_a1", BucketCount},
		{MetaB0, "meta_b0", BucketCount},
		{MetaB1, "meta_b1", BucketCount},
		{X, "x", BucketCount},
		{F7, "f7", BucketCount},
		{T2L, "table_2_l", 1},
		{T2R, "table_2_r", 1},
		{T3L, "table_3_l", 1},
		{T3R, "table_3_r", 1},
		{T4L, "table_4_l", 1},
		{T4R, "table_4_r", 1},
		{T5L, "table_5_l", 1},
		{T5R, "table_5_r", 1},
		{T6L, "table_6_l", 1},
		{T6R, "table_6_r", 1},
		{T7L, "table_7_l", 1},
		{T7R, "table_7_r", 1},
		{SortKey2, "table_2_key", BucketCount},
		{SortKey3, "table_3_key", BucketCount},
		{SortKey4, "table_4_key", BucketCount},
		{SortKey5, "table_5_key", BucketCount},
		{SortKey6, "table_6_key", BucketCount},
		{SortKey7, "table_7_key", BucketCount},
		{Map2, "table_2_map", BucketCount},
		{Map3, "table_3_map", BucketCount},
		{Map4, "table_4_map", BucketCount},
		{Map5, "table_5_map", BucketCount},
		{Map6, "table_6_map", BucketCount},
		{Map7, "table_7_map", BucketCount},
		{MarkedEntries2, "table_2_marks", 1},
		{MarkedEntries3, "table_3_marks", 1},
		{MarkedEntries4, "table_4_marks", 1},
		{MarkedEntries5, "table_5_marks", 1},
		{MarkedEntries6, "table_6_marks", 1},
	}
}
