package tiff

import "fmt"

// Tag IDs the extractor treats specially.
const (
	tagImageDescription uint16 = 270
)

// tagNames maps baseline and common extension tag IDs to their TIFF 6.0
// names, plus the private IDs that show up in microscopy files (ImageJ,
// GDAL, OME, PerkinElmer pyramids).
var tagNames = map[uint16]string{
	254:   "NewSubfileType",
	255:   "SubfileType",
	256:   "ImageWidth",
	257:   "ImageLength",
	258:   "BitsPerSample",
	259:   "Compression",
	262:   "PhotometricInterpretation",
	263:   "Threshholding",
	266:   "FillOrder",
	269:   "DocumentName",
	270:   "ImageDescription",
	271:   "Make",
	272:   "Model",
	273:   "StripOffsets",
	274:   "Orientation",
	277:   "SamplesPerPixel",
	278:   "RowsPerStrip",
	279:   "StripByteCounts",
	282:   "XResolution",
	283:   "YResolution",
	284:   "PlanarConfiguration",
	285:   "PageName",
	296:   "ResolutionUnit",
	297:   "PageNumber",
	305:   "Software",
	306:   "DateTime",
	315:   "Artist",
	317:   "Predictor",
	318:   "WhitePoint",
	319:   "PrimaryChromaticities",
	320:   "ColorMap",
	322:   "TileWidth",
	323:   "TileLength",
	324:   "TileOffsets",
	325:   "TileByteCounts",
	330:   "SubIFDs",
	338:   "ExtraSamples",
	339:   "SampleFormat",
	340:   "SMinSampleValue",
	341:   "SMaxSampleValue",
	347:   "JPEGTables",
	700:   "XMP",
	33432: "Copyright",
	34665: "ExifIFD",
	34675: "ICCProfile",
	42112: "GDALMetadata",
	42113: "GDALNoData",
	50838: "IJMetadataByteCounts",
	50839: "IJMetadata",
}

// TagName returns the conventional name for a tag ID, or "Tag<id>" for IDs
// outside the table.
func TagName(id uint16) string {
	if name, ok := tagNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Tag%d", id)
}
