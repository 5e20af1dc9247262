package hub75

// MaxLevel is the brightest level a gamma corrected channel reaches
const MaxLevel = 1<<BitDepth - 1

// Gamma maps an 8-bit channel value to a 10-bit perceptually corrected level
func Gamma(v uint8) uint16 {
	return gammaLUT[v]
}

var gammaLUT = [256]uint16{
	0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8,
	8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13, 14, 14, 15, 15, 16,
	16, 17, 17, 18, 18, 19, 19, 20, 20, 21, 21, 22, 22, 23, 24, 25,
	26, 27, 29, 30, 31, 33, 34, 35, 37, 38, 40, 41, 43, 44, 46, 47,
	49, 51, 53, 54, 56, 58, 60, 62, 64, 66, 68, 70, 72, 74, 76, 78,
	80, 82, 85, 87, 89, 92, 94, 96, 99, 101, 104, 106, 109, 112, 114, 117,
	120, 122, 125, 128, 131, 134, 137, 140, 143, 146, 149, 152, 155, 158, 161, 164,
	168, 171, 174, 178, 181, 185, 188, 192, 195, 199, 202, 206, 210, 214, 217, 221,
	225, 229, 233, 237, 241, 245, 249, 253, 257, 261, 265, 270, 274, 278, 283, 287,
	291, 296, 300, 305, 309, 314, 319, 323, 328, 333, 338, 343, 347, 352, 357, 362,
	367, 372, 378, 383, 388, 393, 398, 404, 409, 414, 420, 425, 431, 436, 442, 447,
	453, 459, 464, 470, 476, 482, 488, 494, 499, 505, 511, 518, 524, 530, 536, 542,
	548, 555, 561, 568, 574, 580, 587, 593, 600, 607, 613, 620, 627, 633, 640, 647,
	654, 661, 668, 675, 682, 689, 696, 703, 711, 718, 725, 733, 740, 747, 755, 762,
	770, 777, 785, 793, 800, 808, 816, 824, 832, 839, 847, 855, 863, 872, 880, 888,
	896, 904, 912, 921, 929, 938, 946, 954, 963, 972, 980, 989, 997, 1006, 1015, 1023,
}

// Pack gamma corrects an RGB triple into a frame buffer word: red in bits
// 0-9, green in 10-19, blue in 20-29.
func Pack(r, g, b uint8) uint32 {
	return uint32(Gamma(b))<<20 | uint32(Gamma(g))<<10 | uint32(Gamma(r))
}

// Unpack splits a frame buffer word into its three 10-bit levels
func Unpack(w uint32) (r, g, b uint16) {
	return uint16(w & MaxLevel), uint16(w >> 10 & MaxLevel), uint16(w >> 20 & MaxLevel)
}
