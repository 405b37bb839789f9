package downsample

// Fixed-point FIR tap tables. Each table is symmetric with unity passband
// gain after the >>23 renormalization. coef2 is a 39-tap half-band design
// for factor-2 decimation; coef5 is an 89-tap low-pass design for factor-5
// decimation.

var coef2 = [...]int64{
	754, -593, -5030, -1156, 14685, 11700, -28090, -40657,
	35742, 96944, -17241, -182873, -60232, 289286, 249916, -395287,
	-692918, 474138, 2599603, 3691226, 2599603, 474138, -692918, -395287,
	249916, 289286, -60232, -182873, -17241, 96944, 35742, -40657,
	-28090, 11700, 14685, -1156, -5030, -593, 754,
}

var coef5 = [...]int64{
	-259, -587, -862, -823, -226, 1000, 2617, 4030,
	4420, 3040, -389, -5338, -10366, -13391, -12343, -6052,
	4947, 18034, 28870, 32567, 25431, 6752, -20049, -47528,
	-65874, -65882, -42474, 2391, 58598, 109371, 135433, 121005,
	60011, -39474, -154307, -249777, -287196, -233937, -73317, 188510,
	520909, 873334, 1185369, 1399935, 1476364, 1399935, 1185369, 873334,
	520909, 188510, -73317, -233937, -287196, -249777, -154307, -39474,
	60011, 121005, 135433, 109371, 58598, 2391, -42474, -65882,
	-65874, -47528, -20049, 6752, 25431, 32567, 28870, 18034,
	4947, -6052, -12343, -13391, -10366, -5338, -389, 3040,
	4420, 4030, 2617, 1000, -226, -823, -862, -587,
	-259,
}
