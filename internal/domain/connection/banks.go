package connection

// BankSpec describes one supported bank in the country catalog.
type BankSpec struct {
	Name     string
	Senders  []string
	Keywords []string
}

// bankCatalog maps an ISO country code to its supported banks. Filters
// are seeded from this catalog when a mailbox is connected.
var bankCatalog = map[string][]BankSpec{
	"DO": {
		{
			Name:     "Banco Popular Dominicano",
			Senders:  []string{"alertas@bpd.com.do", "notificaciones@popularenlinea.com"},
			Keywords: []string{"consumo", "transacción", "compra"},
		},
		{
			Name:     "Banreservas",
			Senders:  []string{"alertas@banreservas.com", "notificaciones@banreservas.com"},
			Keywords: []string{"consumo", "notificación de transacción"},
		},
		{
			Name:     "Banco BHD",
			Senders:  []string{"alertas@bhd.com.do", "bhdleon@bhdleon.com.do"},
			Keywords: []string{"consumo", "transacción", "aviso de transacción"},
		},
		{
			Name:     "Scotiabank República Dominicana",
			Senders:  []string{"alertas@scotiabank.com.do"},
			Keywords: []string{"transaction alert", "consumo"},
		},
		{
			Name:     "Asociación Popular de Ahorros y Préstamos",
			Senders:  []string{"alertas@apap.com.do"},
			Keywords: []string{"consumo", "transacción"},
		},
	},
	"US": {
		{
			Name:     "Chase",
			Senders:  []string{"no.reply.alerts@chase.com"},
			Keywords: []string{"transaction alert", "your purchase"},
		},
		{
			Name:     "Bank of America",
			Senders:  []string{"onlinebanking@ealerts.bankofamerica.com"},
			Keywords: []string{"transaction alert", "card purchase"},
		},
		{
			Name:     "Capital One",
			Senders:  []string{"capitalone@notification.capitalone.com"},
			Keywords: []string{"transaction notification", "a purchase was made"},
		},
	},
}

// SupportedBanks returns the catalog entries for a country code.
func SupportedBanks(country string) []BankSpec {
	return bankCatalog[country]
}
