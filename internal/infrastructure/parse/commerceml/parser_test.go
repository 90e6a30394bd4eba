package commerceml

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docbridge/backend/internal/domain/document"
)

// writeInvoice drops a CommerceML payload into a temp archive tree under a
// name the principal-file search accepts.
func writeInvoice(t *testing.T, payload string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schet_na_oplatu.xml"), []byte(payload), 0o644))
	return dir
}

const tabularInvoice = `<?xml version="1.0" encoding="utf-8"?>
<КоммерческаяИнформация xmlns="urn:1C.ru:commerceml_2">
  <Каталог>
    <Товары>
      <Товар>
        <Наименование>Труба профильная 40x20</Наименование>
        <Артикул>TUBE-40</Артикул>
        <ЗначенияРеквизитов>
          <ЗначениеРеквизита>
            <Наименование>Для1С_Идентификатор</Наименование>
            <Значение>##abc-1##</Значение>
          </ЗначениеРеквизита>
        </ЗначенияРеквизитов>
      </Товар>
      <Товар>
        <Наименование>Профиль оцинкованный</Наименование>
        <Артикул>PROF-60</Артикул>
        <ЗначенияРеквизитов>
          <ЗначениеРеквизита>
            <Наименование>Для1С_Идентификатор</Наименование>
            <Значение>##abc-2##</Значение>
          </ЗначениеРеквизита>
        </ЗначенияРеквизитов>
      </Товар>
    </Товары>
  </Каталог>
  <Документ>
    <Номер>239</Номер>
    <Дата>2024-04-10</Дата>
    <Сумма>2646.00</Сумма>
    <Контрагенты>
      <Контрагент>
        <Ид>7810000000_781001001</Ид>
        <Наименование>ООО Продавец</Наименование>
        <Роль>Продавец</Роль>
      </Контрагент>
      <Контрагент>
        <Ид>781490187318</Ид>
        <Роль>Покупатель</Роль>
      </Контрагент>
    </Контрагенты>
    <ТабличнаяЧасть>
      <СтрокаТабличнойЧасти>
        <Товар>abc-1</Товар>
        <Количество>10</Количество>
        <Цена>120.50</Цена>
        <Сумма>1205.00</Сумма>
        <СтавкаНДС>20%</СтавкаНДС>
        <СуммаНДС>241.00</СуммаНДС>
        <Всего>1446.00</Всего>
      </СтрокаТабличнойЧасти>
      <СтрокаТабличнойЧасти>
        <Товар>abc-2</Товар>
        <Количество>5</Количество>
        <Цена>200</Цена>
        <Сумма>1000</Сумма>
        <СтавкаНДС>20%</СтавкаНДС>
        <СуммаНДС>200</СуммаНДС>
      </СтрокаТабличнойЧасти>
    </ТабличнаяЧасть>
  </Документ>
</КоммерческаяИнформация>`

func TestParser_Parse_TabularSection(t *testing.T) {
	dir := writeInvoice(t, tabularInvoice)

	doc, err := NewParser(zap.NewNop()).Parse(dir)
	require.NoError(t, err)

	assert.Equal(t, document.TypeCommerce, doc.Type)
	assert.Equal(t, "239", doc.Number)
	assert.Equal(t, time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC), doc.Date)
	assert.Equal(t, "2646", doc.Totals.WithVAT.String())

	assert.Equal(t, "ООО Продавец", doc.Seller.Name)
	assert.Equal(t, "7810000000", doc.Seller.INN)
	assert.Equal(t, "781001001", doc.Seller.KPP)

	assert.Equal(t, "781490187318", doc.Buyer.INN)
	assert.Empty(t, doc.Buyer.KPP)
	assert.True(t, doc.Buyer.IsSoleProprietor())
	assert.Equal(t, "Контрагент (Покупатель)", doc.Buyer.Name)

	require.Len(t, doc.Items, 2)

	first := doc.Items[0]
	assert.Equal(t, 1, first.LineNumber)
	assert.Equal(t, "Труба профильная 40x20", first.Name)
	assert.Equal(t, "TUBE-40", first.Article)
	assert.Equal(t, "10", first.Quantity.String())
	assert.Equal(t, "1446", first.AmountWithVAT.String())

	// Row two has no Всего: the total is computed from amount plus tax.
	second := doc.Items[1]
	assert.Equal(t, 2, second.LineNumber)
	assert.Equal(t, "PROF-60", second.Article)
	assert.Equal(t, "1200", second.AmountWithVAT.String())
}

func TestParser_Parse_ProductLevelPricing(t *testing.T) {
	payload := `<?xml version="1.0" encoding="utf-8"?>
<КоммерческаяИнформация xmlns="urn:1C.ru:commerceml_2">
  <Каталог>
    <Товар>
      <Наименование>Болт М8</Наименование>
      <ЦенаЗаЕдиницу>50</ЦенаЗаЕдиницу>
      <Количество>100</Количество>
      <Сумма>6000</Сумма>
      <Налоги>
        <Налог>
          <Ставка>20</Ставка>
          <Сумма>1000</Сумма>
        </Налог>
      </Налоги>
    </Товар>
  </Каталог>
  <Документ>
    <Номер>12</Номер>
    <Дата>2024-01-05</Дата>
    <Сумма>6000</Сумма>
    <Контрагент><Роль>Продавец</Роль><Ид>7810000000_781001001</Ид></Контрагент>
    <Контрагент><Роль>Покупатель</Роль><Ид>7820000000_782001001</Ид></Контрагент>
  </Документ>
</КоммерческаяИнформация>`

	doc, err := NewParser(zap.NewNop()).Parse(writeInvoice(t, payload))
	require.NoError(t, err)

	require.Len(t, doc.Items, 1)
	item := doc.Items[0]
	assert.Equal(t, "Болт М8", item.Name)
	assert.Equal(t, "100", item.Quantity.String())
	assert.Equal(t, "50", item.Price.String())
	assert.Equal(t, "20%", item.VATRate)
	assert.Equal(t, "1000", item.VATAmount.String())
	// Tax is carved out of the inclusive sum.
	assert.Equal(t, "5000", item.AmountWithoutVAT.String())
	assert.Equal(t, "6000", item.AmountWithVAT.String())
}

func TestParser_Parse_EvenSplitFallback(t *testing.T) {
	payload := `<?xml version="1.0" encoding="utf-8"?>
<КоммерческаяИнформация xmlns="urn:1C.ru:commerceml_2">
  <Каталог>
    <Товар><Наименование>Товар А</Наименование></Товар>
    <Товар><Наименование>Товар Б</Наименование></Товар>
    <Товар><Наименование>Товар В</Наименование></Товар>
  </Каталог>
  <Документ>
    <Номер>77</Номер>
    <Дата>2024-02-01</Дата>
    <Сумма>3000.00</Сумма>
    <Контрагент><Роль>Продавец</Роль><Ид>7810000000_781001001</Ид></Контрагент>
    <Контрагент><Роль>Покупатель</Роль><Ид>7820000000_782001001</Ид></Контрагент>
  </Документ>
</КоммерческаяИнформация>`

	doc, err := NewParser(zap.NewNop()).Parse(writeInvoice(t, payload))
	require.NoError(t, err)

	require.Len(t, doc.Items, 3)
	for _, item := range doc.Items {
		assert.Equal(t, "1000", item.Price.String())
		assert.Equal(t, "200", item.VATAmount.String())
		assert.Equal(t, "1200", item.AmountWithVAT.String())
		assert.Equal(t, "20%", item.VATRate)
		assert.Equal(t, "1", item.Quantity.String())
	}
}

func TestParser_Parse_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name:    "number missing",
			doc:     `<Документ><Дата>2024-01-01</Дата></Документ>`,
			wantErr: document.ErrRequiredField,
		},
		{
			name:    "date missing",
			doc:     `<Документ><Номер>1</Номер></Документ>`,
			wantErr: document.ErrRequiredField,
		},
		{
			name:    "date malformed",
			doc:     `<Документ><Номер>1</Номер><Дата>01.02.2024</Дата></Документ>`,
			wantErr: document.ErrDocumentParsing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := `<?xml version="1.0"?><КоммерческаяИнформация xmlns="urn:1C.ru:commerceml_2">` +
				tt.doc + `</КоммерческаяИнформация>`
			_, err := NewParser(zap.NewNop()).Parse(writeInvoice(t, payload))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParser_Parse_MissingParties(t *testing.T) {
	_, err := NewParser(zap.NewNop()).Parse(writeInvoice(t,
		`<?xml version="1.0"?><КоммерческаяИнформация xmlns="urn:1C.ru:commerceml_2">
<Документ><Номер>1</Номер><Дата>2024-01-01</Дата>
<Контрагент><Роль>Покупатель</Роль><Ид>7820000000</Ид></Контрагент>
</Документ></КоммерческаяИнформация>`))
	assert.ErrorIs(t, err, document.ErrSellerNotFound)

	_, err = NewParser(zap.NewNop()).Parse(writeInvoice(t,
		`<?xml version="1.0"?><КоммерческаяИнформация xmlns="urn:1C.ru:commerceml_2">
<Документ><Номер>1</Номер><Дата>2024-01-01</Дата>
<Контрагент><Роль>Продавец</Роль><Ид>7810000000</Ид></Контрагент>
</Документ></КоммерческаяИнформация>`))
	assert.ErrorIs(t, err, document.ErrBuyerNotFound)
}

func TestParser_Parse_PrincipalNotFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meta.xml"), []byte(`<Meta/>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export.xml"), []byte(`<Unrelated/>`), 0o644))

	_, err := NewParser(zap.NewNop()).Parse(dir)
	assert.ErrorIs(t, err, document.ErrPrincipalNotFound)
}
