package forms

// Form field keys and the selectors they live behind on the venue's
// booking form.
var FormSelectors = map[string]string{
	"firstName": `input[name="client.firstName"]`,
	"lastName":  `input[name="client.lastName"]`,
	"phone":     `input[name="client.phone"]`,
	"email":     `input[name="client.email"]`,
}

// RequiredFields is the fill order; the venue rejects any blank one.
var RequiredFields = []string{"firstName", "lastName", "phone", "email"}

// FirstNameSelector doubles as the form-presence probe for navigation.
const FirstNameSelector = `input[name="client.firstName"]`
