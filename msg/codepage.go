package msg

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// codepages maps Windows codepage numbers to decoders. Messages name
// their string8 codepage in PidTagMessageCodepage or, failing that,
// PidTagInternetCodepage.
var codepages = map[uint32]encoding.Encoding{
	874:   charmap.Windows874,
	932:   japanese.ShiftJIS,
	936:   simplifiedchinese.GBK,
	949:   korean.EUCKR,
	950:   traditionalchinese.Big5,
	1250:  charmap.Windows1250,
	1251:  charmap.Windows1251,
	1252:  charmap.Windows1252,
	1253:  charmap.Windows1253,
	1254:  charmap.Windows1254,
	1255:  charmap.Windows1255,
	1256:  charmap.Windows1256,
	1257:  charmap.Windows1257,
	1258:  charmap.Windows1258,
	20866: charmap.KOI8R,
	28591: charmap.ISO8859_1,
	28592: charmap.ISO8859_2,
	28595: charmap.ISO8859_5,
	28597: charmap.ISO8859_7,
	28605: charmap.ISO8859_15,
}

// codepageEncoding returns the decoder for cp. UTF-8 (65001) decodes
// via the nil encoding; anything unknown falls back to Windows-1252,
// the dominant legacy default.
func codepageEncoding(cp uint32) encoding.Encoding {
	if cp == 65001 {
		return nil
	}
	if enc, ok := codepages[cp]; ok {
		return enc
	}
	return charmap.Windows1252
}
