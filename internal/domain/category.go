package domain

// Category is a garment class the split flow extracts from a photo.
type Category struct {
	Name        string
	Instruction string
}

var categories = [...]Category{
	{
		Name: "Top",
		Instruction: "Extract only the upper-body garment worn in this photo (shirt, blouse, jacket, sweater or dress top). " +
			"Render it as a flat-lay product shot on a plain white background, front view, with no person, mannequin, " +
			"hanger or shadow. Keep the original colour, pattern, fabric texture, logos and stitching exactly as seen. " +
			"Complete any parts hidden by arms or hair naturally. Output a single centred garment, square framing.",
	},
	{
		Name: "Bot",
		Instruction: "Extract only the lower-body garment worn in this photo (trousers, jeans, shorts or skirt). " +
			"Render it as a flat-lay product shot on a plain white background, front view, with no person, shoes, belt " +
			"or shadow. Keep the original colour, wash, pattern, fabric texture, pockets and seams exactly as seen. " +
			"Complete any parts hidden by the top or by hands naturally. Output a single centred garment, square framing.",
	},
}

// Categories returns the fixed set of split categories in order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories[:])
	return out
}

// CategoryByName looks up a category by its name.
func CategoryByName(name string) (Category, bool) {
	for _, c := range categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// TryOnInstruction is the model instruction for dressing the person in the
// first image with the garments in the following ones.
func TryOnInstruction(garments int) string {
	noun := "garment"
	if garments > 1 {
		noun = "garments"
	}
	return "The first image shows a person. The following images show the " + noun + " to put on them. " +
		"Produce one photorealistic image of the same person wearing the " + noun + ", replacing what they " +
		"currently wear in the same body regions. Keep the face, hair, skin tone, body shape, pose and " +
		"background unchanged. Match each garment's colour, pattern, texture and fit precisely, with natural " +
		"folds, lighting and shadows consistent with the original photo."
}
