package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsLink(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"plain text", "bora pro rolê hoje?", false},
		{"http url", "olha isso http://example.com/promo", true},
		{"https url", "https://example.com", true},
		{"www prefix", "acessem www.minhapagina.net agora", true},
		{"bare domain with known tld", "me segue em exemplo.com.br", true},
		{"invite link", "entra aqui chat.whatsapp.com/AbCdEf123", true},
		{"version number", "atualizei pra v1.2 hoje", false},
		{"filename", "mandei o arquivo relatorio.pdf", false},
		{"dotted abbreviation", "chego às 19.30 hrs", false},
		{"uppercase url", "HTTPS://EXEMPLO.COM", true},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsLink(tt.text))
		})
	}
}

func TestNormalizeLink(t *testing.T) {
	assert.Equal(t, "chat.whatsapp.com/abc", NormalizeLink("https://Chat.WhatsApp.com/ABC"))
	assert.Equal(t, "example.com", NormalizeLink("http://example.com."))
	assert.Equal(t, "www.example.com", NormalizeLink(" www.example.com, "))
}

func TestLinkCandidates(t *testing.T) {
	got := LinkCandidates("veja https://a.example.com e também b.org valeu")
	assert.Equal(t, []string{"a.example.com", "b.org"}, got)
	assert.Empty(t, LinkCandidates("nenhum link aqui"))
}

func TestContainsInviteLink(t *testing.T) {
	assert.True(t, ContainsInviteLink("vem pro grupo https://chat.whatsapp.com/XyZ"))
	assert.True(t, ContainsInviteLink("CHAT.WHATSAPP.COM/abc"))
	assert.False(t, ContainsInviteLink("https://example.com"))
	assert.False(t, ContainsInviteLink("sem link nenhum"))
}
