package apkparser

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/shogo82148/androidbinary"
)

const (
	manifestEntry  = "AndroidManifest.xml"
	resourcesEntry = "resources.arsc"

	// 防止畸形 APK 耗尽内存
	maxEntrySize = 256 << 20
)

var (
	// ErrMissingManifest APK 中没有 AndroidManifest.xml
	ErrMissingManifest = errors.New("AndroidManifest.xml not found")
	// ErrMissingPackage 清单中没有包名
	ErrMissingPackage = errors.New("manifest has no package name")
)

// manifestXML 二进制清单中需要的字段
type manifestXML struct {
	Package          androidbinary.String `xml:"package,attr"`
	Split            androidbinary.String `xml:"split,attr"`
	SharedUserID     androidbinary.String `xml:"http://schemas.android.com/apk/res/android sharedUserId,attr"`
	VersionCode      androidbinary.Int32  `xml:"http://schemas.android.com/apk/res/android versionCode,attr"`
	VersionCodeMajor androidbinary.Int32  `xml:"http://schemas.android.com/apk/res/android versionCodeMajor,attr"`
	VersionName      androidbinary.String `xml:"http://schemas.android.com/apk/res/android versionName,attr"`
	SDK              struct {
		Min    androidbinary.Int32 `xml:"http://schemas.android.com/apk/res/android minSdkVersion,attr"`
		Target androidbinary.Int32 `xml:"http://schemas.android.com/apk/res/android targetSdkVersion,attr"`
	} `xml:"uses-sdk"`
	App struct {
		Label     androidbinary.String `xml:"http://schemas.android.com/apk/res/android label,attr"`
		Icon      androidbinary.String `xml:"http://schemas.android.com/apk/res/android icon,attr"`
		RoundIcon androidbinary.String `xml:"http://schemas.android.com/apk/res/android roundIcon,attr"`
	} `xml:"application"`
	UsesPermissions []struct {
		Name androidbinary.String `xml:"http://schemas.android.com/apk/res/android name,attr"`
	} `xml:"uses-permission"`
}

// Manifest 清单解析结果
type Manifest struct {
	PackageName  string
	SplitName    string
	SharedUserID string
	VersionCode  int64
	VersionName  string
	MinSdk       string
	TargetSdk    string
	Label        string
	Icon         string
	Permissions  []string
}

// ReadManifest 从已打开的 APK 中解析清单，resources.arsc 缺失时标签和图标保留资源引用
func ReadManifest(zr *zip.Reader) (m *Manifest, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed manifest: %v", r)
		}
	}()

	manifestData, err := readEntry(zr, manifestEntry)
	if err != nil {
		return nil, err
	}
	if manifestData == nil {
		return nil, ErrMissingManifest
	}

	var table *androidbinary.TableFile
	if resData, err := readEntry(zr, resourcesEntry); err == nil && resData != nil {
		// 资源表损坏不影响包名等基本字段
		table, _ = androidbinary.NewTableFile(bytes.NewReader(resData))
	}

	xmlFile, err := androidbinary.NewXMLFile(bytes.NewReader(manifestData))
	if err != nil {
		return nil, fmt.Errorf("parse binary xml: %w", err)
	}

	var raw manifestXML
	if err := xmlFile.Decode(&raw, table, nil); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	m = &Manifest{
		PackageName:  stringValue(raw.Package),
		SplitName:    stringValue(raw.Split),
		SharedUserID: stringValue(raw.SharedUserID),
		VersionName:  stringValue(raw.VersionName),
		MinSdk:       intString(raw.SDK.Min),
		TargetSdk:    intString(raw.SDK.Target),
		Label:        stringValue(raw.App.Label),
		Icon:         stringValue(raw.App.Icon),
	}
	if m.Icon == "" {
		m.Icon = stringValue(raw.App.RoundIcon)
	}
	if m.PackageName == "" {
		return nil, ErrMissingPackage
	}

	minor, _ := raw.VersionCode.Int32()
	major, _ := raw.VersionCodeMajor.Int32()
	m.VersionCode = int64(major)<<32 | int64(uint32(minor))

	for _, p := range raw.UsesPermissions {
		if name := stringValue(p.Name); name != "" {
			m.Permissions = append(m.Permissions, name)
		}
	}
	return m, nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, nil
}

func stringValue(s androidbinary.String) string {
	v, err := s.String()
	if err != nil {
		return ""
	}
	return v
}

// intString 属性缺失时返回空串
func intString(v androidbinary.Int32) string {
	i, err := v.Int32()
	if err != nil {
		return ""
	}
	return strconv.Itoa(int(i))
}
