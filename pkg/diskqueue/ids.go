package diskqueue

import "plotdisk/internal/base"

// The logical tables of the plotting pipeline, re-exported so embedders
// address file sets without reaching into internal packages.
const (
	Y0             = base.Y0
	Y1             = base.Y1
	MetaA0         = base.MetaA0
	MetaA1         = base.MetaA1
	MetaB0         = base.MetaB0
	MetaB1         = base.MetaB1
	X              = base.X
	F7             = base.F7
	T2L            = base.T2L
	T2R            = base.T2R
	T3L            = base.T3L
	T3R            = base.T3R
	T4L            = base.T4L
	T4R            = base.T4R
	T5L            = base.T5L
	T5R            = base.T5R
	T6L            = base.T6L
	T6R            = base.T6R
	T7L            = base.T7L
	T7R            = base.T7R
	SortKey2       = base.SortKey2
	SortKey3       = base.SortKey3
	SortKey4       = base.SortKey4
	SortKey5       = base.SortKey5
	SortKey6       = base.SortKey6
	SortKey7       = base.SortKey7
	Map2           = base.Map2
	Map3           = base.Map3
	Map4           = base.Map4
	Map5           = base.Map5
	Map6           = base.Map6
	Map7           = base.Map7
	MarkedEntries2 = base.MarkedEntries2
	MarkedEntries3 = base.MarkedEntries3
	MarkedEntries4 = base.MarkedEntries4
	MarkedEntries5 = base.MarkedEntries5
	MarkedEntries6 = base.MarkedEntries6
	PlotFile       = base.Plot
)
