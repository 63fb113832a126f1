// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package scsi

import (
	"bytes"
	"fmt"
)

const (
	allModePages         = byte(0x3f)
	subPageFormatBitMask = byte(0x40)
)

type ModePage struct {
	// Page code
	PageCode uint8
	// Sub page code
	SubPageCode uint8
	// Rest of mode page info
	Data []byte
}

func (modePage ModePage) size() byte {
	return byte(len(modePage.Data))
}

func (modePage ModePage) toByte(pageControl byte) []byte {
	var data []byte
	if modePage.SubPageCode == 0 {
		data = []byte{
			modePage.PageCode,
			modePage.size(),
		}
	} else {
		data = []byte{
			modePage.PageCode | subPageFormatBitMask,
			modePage.SubPageCode,
			// 2 bytes for size
			0x00, modePage.size(),
		}
	}
	// pageControl = 0b0 requires current values
	// pageControl = 0b1 requires changeable values
	// pageControl = 0b10 requires default values
	// pageControl = 0b11 requires saved values
	// No value is changeable, current values double as default and saved.
	if pageControl == 1 {
		return append(data, make([]byte, len(modePage.Data))...)
	}
	return append(data, modePage.Data...)
}

type ModePages []ModePage

func (modePages ModePages) findPage(pageCode, subPageCode uint8) *ModePage {
	for index := range modePages {
		modePage := &modePages[index]
		if modePage.PageCode == pageCode && modePage.SubPageCode == subPageCode {
			return modePage
		}
	}
	return nil
}

func (modePages ModePages) toBytes(pageCode, subPageCode, pageControl uint8) ([]byte, error) {
	data := make([]byte, 0, len(modePages)*30)
	if pageCode == allModePages {
		switch subPageCode {
		case 0x00:
			for _, modePage := range modePages {
				if modePage.SubPageCode == 0x00 {
					data = append(data, modePage.toByte(pageControl)...)
				}
			}
		case 0xff:
			for _, modePage := range modePages {
				data = append(data, modePage.toByte(pageControl)...)
			}
		default:
			return nil, fmt.Errorf(
				"mode page for all pages (pageCode=%d) does not "+
					"support subpage code subPageCode=%d",
				pageCode,
				subPageCode,
			)
		}
		return data, nil
	}
	selectedModePage := modePages.findPage(pageCode, subPageCode)
	if selectedModePage == nil {
		return nil, fmt.Errorf(
			"mode page pageCode=%d, subPageCode=%d not found",
			pageCode,
			subPageCode,
		)
	}
	return append(data, selectedModePage.toByte(pageControl)...), nil
}

// verify checks a MODE SELECT parameter list page by page against the current
// values. Since nothing is changeable, a page is only accepted unchanged.
func (modePages ModePages) verify(pageList []byte) error {
	for len(pageList) > 0 {
		var pageCode, subPageCode byte
		var header, length int
		pageCode = pageList[0] & allModePages
		if pageList[0]&subPageFormatBitMask != 0 {
			if len(pageList) < 4 {
				return fmt.Errorf("truncated sub page header")
			}
			subPageCode = pageList[1]
			header = 4
			length = int(pageList[2])<<8 | int(pageList[3])
		} else {
			if len(pageList) < 2 {
				return fmt.Errorf("truncated page header")
			}
			header = 2
			length = int(pageList[1])
		}
		if len(pageList) < header+length {
			return fmt.Errorf("page 0x%x is truncated", pageCode)
		}
		modePage := modePages.findPage(pageCode, subPageCode)
		if modePage == nil {
			return fmt.Errorf("page 0x%x/0x%x is not supported", pageCode, subPageCode)
		}
		if !bytes.Equal(modePage.Data, pageList[header:header+length]) {
			return fmt.Errorf("page 0x%x/0x%x can't be changed", pageCode, subPageCode)
		}
		pageList = pageList[header+length:]
	}
	return nil
}
