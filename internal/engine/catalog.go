package engine

// condition is a detectable spine condition with its clinically-plausible
// probability range.
type condition struct {
	label       string
	description string
	lo, hi      float64
}

var spineConditions = []condition{
	{
		label:       "Disc Space Narrowing",
		description: "Reduced space between vertebral discs, often indicating disc degeneration",
		lo:          0.3, hi: 0.95,
	},
	{
		label:       "Degenerative Changes",
		description: "Age-related wear and tear of spinal structures",
		lo:          0.2, hi: 0.9,
	},
	{
		label:       "Spondylolisthesis",
		description: "Forward displacement of a vertebra over the one below it",
		lo:          0.05, hi: 0.6,
	},
	{
		label:       "Osteophytes",
		description: "Bone spurs forming along vertebral edges",
		lo:          0.1, hi: 0.75,
	},
	{
		label:       "Scoliosis",
		description: "Abnormal lateral curvature of the spine",
		lo:          0.05, hi: 0.5,
	},
	{
		label:       "Vertebral Compression",
		description: "Compression fracture or collapse of vertebral body",
		lo:          0.02, hi: 0.4,
	},
	{
		label:       "Spinal Stenosis",
		description: "Narrowing of the spinal canal",
		lo:          0.1, hi: 0.6,
	},
}
