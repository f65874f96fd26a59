package geometry

import "shorts-creator/internal/domain"

// Plan derives the crop size applied to each half of the stacked
// composite. The shorter input bounds the target height; each half is
// half that height, and the width is height*9/8 with truncating integer
// arithmetic. The 9/8 factor is kept as-is for output parity even
// though a true 9:16 stack would use a different ratio.
func Plan(top, bottom domain.Dimensions) domain.Geometry {
	targetHeight := top.Height
	if bottom.Height < targetHeight {
		targetHeight = bottom.Height
	}

	segmentHeight := targetHeight / 2
	return domain.Geometry{
		SegmentWidth:  segmentHeight * 9 / 8,
		SegmentHeight: segmentHeight,
	}
}
