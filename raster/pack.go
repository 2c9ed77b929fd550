package raster

// Packs splits images into maximal runs of consecutive compatible images,
// keeping their order.
func Packs(images []Image) [][]Image {
	var packs [][]Image
	for i, img := range images {
		if i == 0 || !images[i-1].Info().Compatible(img.Info()) {
			packs = append(packs, []Image{img})
			continue
		}
		packs[len(packs)-1] = append(packs[len(packs)-1], img)
	}
	return packs
}
