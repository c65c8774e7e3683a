package payment

var statusMessages = map[string]string{
	"approved":     "¡Pago aprobado!",
	"pending":      "Pago pendiente de confirmación",
	"authorized":   "Pago autorizado, pendiente de captura",
	"in_process":   "Pago en proceso de revisión",
	"in_mediation": "Pago en disputa",
	"cancelled":    "Pago cancelado",
	"refunded":     "Pago reembolsado",
	"charged_back": "Contracargo realizado",
}

var rejectionMessages = map[string]string{
	"cc_rejected_bad_filled_card_number":   "Número de tarjeta incorrecto",
	"cc_rejected_bad_filled_date":          "Fecha de vencimiento incorrecta",
	"cc_rejected_bad_filled_other":         "Datos de tarjeta incorrectos",
	"cc_rejected_bad_filled_security_code": "Código de seguridad incorrecto",
	"cc_rejected_blacklist":                "Tarjeta no permitida",
	"cc_rejected_call_for_authorize":       "Debes autorizar el pago con tu banco",
	"cc_rejected_card_disabled":            "Tarjeta deshabilitada",
	"cc_rejected_card_error":               "Error en la tarjeta",
	"cc_rejected_duplicated_payment":       "Pago duplicado",
	"cc_rejected_high_risk":                "Pago rechazado por seguridad",
	"cc_rejected_insufficient_amount":      "Fondos insuficientes",
	"cc_rejected_invalid_installments":     "Cuotas no disponibles",
	"cc_rejected_max_attempts":             "Máximo de intentos alcanzado",
	"cc_rejected_other_reason":             "Pago rechazado por el banco",
}

// StatusMessage returns the buyer-facing text for a provider status.
func StatusMessage(status, detail string) string {
	if status == "rejected" {
		if msg, ok := rejectionMessages[detail]; ok {
			return msg
		}
		return "Pago rechazado. Intenta con otra tarjeta."
	}
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return "Estado: " + status
}
