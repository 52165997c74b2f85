// Package i18n holds the user-facing messages of the checkout flow and picks
// the language they are rendered in.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message codes. They are stable and returned to clients next to the text.
const (
	CodeBackendUnavailable  = "backend_unavailable"
	CodeBusinessError       = "business_error"
	CodeBusinessErrorDetail = "business_error_detail"
	CodeSessionExpired      = "session_expired"
	CodeNoCoverage          = "no_coverage"
	CodeInvalidStep         = "invalid_step"
	CodeInvalidForm         = "invalid_form"
	CodeInvalidInput        = "invalid_input"
	CodeUnknownPlan         = "unknown_plan"
	CodeUnknownContract     = "unknown_contract"
	CodeUnknownProduct      = "unknown_product"
	CodeUnknownShipping     = "unknown_shipping"
	CodeUnknownCartLine     = "unknown_cart_line"
	CodeInvalidInstallments = "invalid_installments"
	CodeEquipmentRequired   = "equipment_required"
	CodePaymentRejected     = "payment_rejected"
	CodePaymentExpired      = "payment_expired"
	CodePaymentMismatch     = "payment_mismatch"
	CodeNothingToRetry      = "nothing_to_retry"
	CodeOrderLocked         = "order_locked"
)

var messages = map[language.Tag]map[string]string{
	language.Spanish: {
		CodeBackendUnavailable:  "El servicio no está disponible en este momento. Inténtalo de nuevo.",
		CodeBusinessError:       "No pudimos completar la operación.",
		CodeBusinessErrorDetail: "No pudimos completar la operación: %s",
		CodeSessionExpired:      "Tu sesión expiró. Inténtalo de nuevo.",
		CodeNoCoverage:          "No tenemos cobertura en la dirección indicada.",
		CodeInvalidStep:         "Esta acción no está disponible en el paso actual.",
		CodeInvalidForm:         "Revisa los datos del formulario: %s",
		CodeInvalidInput:        "Los datos enviados no son válidos: %s",
		CodeUnknownPlan:         "El plan seleccionado no está disponible.",
		CodeUnknownContract:     "El contrato seleccionado no está disponible.",
		CodeUnknownProduct:      "El producto seleccionado no está disponible.",
		CodeUnknownShipping:     "La opción de envío seleccionada no está disponible.",
		CodeUnknownCartLine:     "El producto no está en el carrito.",
		CodeInvalidInstallments: "El producto no admite %d cuotas.",
		CodeEquipmentRequired:   "El plan elegido requiere agregar un equipo.",
		CodePaymentRejected:     "El pago fue rechazado. Puedes intentarlo nuevamente.",
		CodePaymentExpired:      "El plazo para pagar el pedido venció. Inténtalo nuevamente.",
		CodePaymentMismatch:     "El resultado del pago no corresponde a este pedido.",
		CodeNothingToRetry:      "No hay ninguna operación para reintentar.",
		CodeOrderLocked:         "El pedido ya fue creado y no es posible volver atrás.",
	},
	language.English: {
		CodeBackendUnavailable:  "The service is unavailable right now. Please try again.",
		CodeBusinessError:       "We could not complete the operation.",
		CodeBusinessErrorDetail: "We could not complete the operation: %s",
		CodeSessionExpired:      "Your session expired. Please try again.",
		CodeNoCoverage:          "There is no coverage at the given address.",
		CodeInvalidStep:         "This action is not available at the current step.",
		CodeInvalidForm:         "Please review the form: %s",
		CodeInvalidInput:        "The submitted data is invalid: %s",
		CodeUnknownPlan:         "The selected plan is not available.",
		CodeUnknownContract:     "The selected contract is not available.",
		CodeUnknownProduct:      "The selected product is not available.",
		CodeUnknownShipping:     "The selected shipping option is not available.",
		CodeUnknownCartLine:     "The product is not in the cart.",
		CodeInvalidInstallments: "The product cannot be paid in %d installments.",
		CodeEquipmentRequired:   "The selected plan requires an equipment.",
		CodePaymentRejected:     "The payment was rejected. You can try again.",
		CodePaymentExpired:      "The time to pay for the order ran out. Please try again.",
		CodePaymentMismatch:     "The payment result does not match this order.",
		CodeNothingToRetry:      "There is no operation to retry.",
		CodeOrderLocked:         "The order was already created; going back is not possible.",
	},
}

// Translator renders message codes in one of the supported languages.
type Translator struct {
	fallback language.Tag
	matcher  language.Matcher
	catalog  *catalog.Builder
}

// New returns a Translator that falls back to defaultLang, or Spanish when
// defaultLang is not supported.
func New(defaultLang string) *Translator {
	fallback := language.Spanish
	if tag, err := language.Parse(defaultLang); err == nil && supported(tag) {
		fallback = tag
	}

	// the matcher answers with its first tag when nothing matches
	tags := []language.Tag{fallback}
	for tag := range messages {
		if tag != fallback {
			tags = append(tags, tag)
		}
	}

	b := catalog.NewBuilder(catalog.Fallback(fallback))
	for tag, msgs := range messages {
		for code, text := range msgs {
			// SetString only fails on malformed messages
			_ = b.SetString(tag, code, text)
		}
	}

	return &Translator{
		fallback: fallback,
		matcher:  language.NewMatcher(tags),
		catalog:  b,
	}
}

// Default is the language used when a client expresses no usable preference.
func (t *Translator) Default() string {
	return t.fallback.String()
}

// Negotiate picks a supported language from an Accept-Language header value.
func (t *Translator) Negotiate(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return t.Default()
	}
	tag, _, confidence := t.matcher.Match(tags...)
	if confidence == language.No {
		return t.Default()
	}
	base, _ := tag.Base()
	return base.String()
}

// Normalize maps any language string to a supported one.
func (t *Translator) Normalize(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return t.Default()
	}
	return t.Negotiate(tag.String())
}

// Message renders code in lang. Unknown codes are returned as they are.
func (t *Translator) Message(lang, code string, args ...any) string {
	tag, err := language.Parse(lang)
	if err != nil || !supported(tag) {
		tag = t.fallback
	}
	p := message.NewPrinter(tag, message.Catalog(t.catalog))
	return p.Sprintf(code, args...)
}

func supported(tag language.Tag) bool {
	base, _ := tag.Base()
	for known := range messages {
		if b, _ := known.Base(); b == base {
			return true
		}
	}
	return false
}
