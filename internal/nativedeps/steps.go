package nativedeps

import "fmt"

// Shared CMake invocations. Every path variable is quoted so that spaces in
// Windows paths never split an argument.
const (
	cmakeConfigureLine = `"$CMAKE" -S "$SOURCE" -B "$BUILD" -G "$GENERATOR" -A "$ARCH" "-DCMAKE_INSTALL_PREFIX=$DIST" "-DCMAKE_BUILD_TYPE=$CONFIG"`
	cmakeBuildLine     = `"$CMAKE" --build "$BUILD" --config "$CONFIG" --parallel "$JOBS"`
	cmakeInstallLine   = `"$CMAKE" --install "$BUILD" --config "$CONFIG"`
	ctestLine          = `"$CTEST" --test-dir "$BUILD" -C "$CONFIG" --output-on-failure`
	msbuildLine        = `"$MSBUILD" -m -nologo "-p:Configuration=$CONFIG" "-p:Platform=$PLATFORM"`
)

func cmakeConfigure(flags string) Action {
	if flags == "" {
		return Exec(cmakeConfigureLine)
	}
	return Exec(cmakeConfigureLine + " " + flags)
}

// cmakeStep fills in the configure/build/install phases every CMake project shares.
func cmakeStep(s Step, flags string, withTests bool) Step {
	s.Configure = append([]Action{cmakeConfigure(flags)}, s.Configure...)
	s.Build = append([]Action{Exec(cmakeBuildLine)}, s.Build...)
	s.Install = append([]Action{Exec(cmakeInstallLine)}, s.Install...)
	if withTests {
		s.Test = append([]Action{Exec(ctestLine)}, s.Test...)
	}
	return s
}

// Steps returns the step table in build order. Later entries read the
// installed artifacts of earlier ones; the order is the dependency graph.
func Steps() []Step {
	return []Step{
		cmakeStep(Step{
			Name: "zlib",
			PostInstall: []Action{
				// Consumers link against zlib.lib regardless of configuration.
				Copy("$DIST/lib/zlibd.lib", "$DIST/lib/zlib.lib").DebugOnly(),
				Copy("$DIST/lib/zlib${DEBUG_SUFFIX}.lib", "$DIST/lib/zdll.lib"),
			},
		}, `-DZLIB_BUILD_EXAMPLES=OFF`, true),

		cmakeStep(Step{
			Name:      "lz4",
			SourceDir: "build/cmake",
			PostInstall: []Action{
				Copy("$DIST/lib/lz4.lib", "$DIST/lib/liblz4.lib"),
			},
		}, `-DLZ4_BUILD_CLI=OFF -DLZ4_BUILD_LEGACY_LZ4C=OFF -DBUILD_SHARED_LIBS=ON -DBUILD_STATIC_LIBS=OFF`, false),

		cmakeStep(Step{
			Name:      "zstd",
			SourceDir: "build/cmake",
			PostInstall: []Action{
				Copy("$DIST/lib/zstd.lib", "$DIST/lib/libzstd.lib"),
			},
		}, `-DZSTD_BUILD_PROGRAMS=OFF -DZSTD_BUILD_STATIC=OFF -DZSTD_BUILD_SHARED=ON "-DZSTD_BUILD_TESTS=$TESTS"`, true),

		{
			Name:      "icu",
			SourceDir: "icu4c/source",
			Build: []Action{
				Exec(msbuildLine + ` -p:SkipUWP=true "$SOURCE/allinone/allinone.sln"`).In("$SOURCE/allinone"),
			},
			Test: []Action{
				Exec(`cmd /c icucheck.bat "$PLATFORM" "$CONFIG"`).In("$SOURCE/allinone"),
			},
			// ICU's solution has no install target; its outputs land in the checkout.
			Install: []Action{
				CopyTree("$SRC/icu4c/include", "$DIST/include"),
				CopyTree("$SRC/icu4c/bin64", "$DIST/bin"),
				CopyTree("$SRC/icu4c/lib64", "$DIST/lib"),
			},
		},

		cmakeStep(Step{
			Name:     "libxml2",
			Requires: []string{"icu", "zlib"},
			PostInstall: []Action{
				Copy("$DIST/lib/libxml2d.lib", "$DIST/lib/libxml2.lib").DebugOnly(),
			},
		}, `-DBUILD_SHARED_LIBS=ON "-DCMAKE_PREFIX_PATH=$ICU_DIST;$ZLIB_DIST" "-DICU_ROOT=$ICU_DIST" `+
			`-DLIBXML2_WITH_ICU=ON -DLIBXML2_WITH_ZLIB=ON -DLIBXML2_WITH_LZMA=OFF -DLIBXML2_WITH_ICONV=OFF `+
			`-DLIBXML2_WITH_PYTHON=OFF -DLIBXML2_WITH_PROGRAMS=OFF "-DLIBXML2_WITH_TESTS=$TESTS"`, true),

		cmakeStep(Step{
			Name:     "libxslt",
			Requires: []string{"libxml2", "icu", "zlib"},
			PostInstall: []Action{
				Copy("$DIST/lib/libxsltd.lib", "$DIST/lib/libxslt.lib").DebugOnly(),
				Copy("$DIST/lib/libexsltd.lib", "$DIST/lib/libexslt.lib").DebugOnly(),
			},
		}, `-DBUILD_SHARED_LIBS=ON "-DCMAKE_PREFIX_PATH=$LIBXML2_DIST;$ICU_DIST;$ZLIB_DIST" `+
			`-DLIBXSLT_WITH_PYTHON=OFF -DLIBXSLT_WITH_PROGRAMS=OFF -DLIBXSLT_WITH_CRYPTO=OFF "-DLIBXSLT_WITH_TESTS=$TESTS"`, true),

		{
			Name: "openssl",
			Vars: map[string]Choice{
				"OPENSSL_BUILD": {Release: "--release", Debug: "--debug"},
			},
			Configure: []Action{
				Exec(`"$PERL" "$SRC/Configure" "$OPENSSL_TARGET" "$OPENSSL_BUILD" "--prefix=$DIST" "--openssldir=$DIST/ssl" shared no-asm`),
			},
			Build:   []Action{Exec(`"$NMAKE"`)},
			Test:    []Action{Exec(`"$NMAKE" test`)},
			Install: []Action{Exec(`"$NMAKE" install_sw install_ssldirs`)},
			PostInstall: []Action{
				// Legacy import library names still probed by older find modules.
				Copy("$DIST/lib/libcrypto.lib", "$DIST/lib/libeay32.lib"),
				Copy("$DIST/lib/libssl.lib", "$DIST/lib/ssleay32.lib"),
			},
		},

		cmakeStep(Step{
			Name:     "freetds",
			Requires: []string{"openssl"},
			PostInstall: []Action{
				Rename("$BUILD/src/dblib/$CONFIG/sybdb.pdb", "$DIST/lib/sybdb.pdb").DebugOnly(),
			},
		}, `"-DOPENSSL_ROOT_DIR=$OPENSSL_DIST" "-DCMAKE_PREFIX_PATH=$OPENSSL_DIST;$ICONV_ROOT" -DWITH_OPENSSL=ON -DENABLE_MSDBLIB=ON`, true),

		cmakeStep(Step{
			Name: "mimalloc",
			PostInstall: []Action{
				Copy("$BUILD/$CONFIG/mimalloc-redirect.dll", "$DIST/bin/mimalloc-redirect.dll"),
				Copy("$DIST/lib/mimalloc-debug.lib", "$DIST/lib/mimalloc.lib").DebugOnly(),
			},
		}, `"-DMI_BUILD_TESTS=$TESTS" -DMI_BUILD_STATIC=OFF -DMI_BUILD_OBJECT=OFF -DMI_OVERRIDE=ON -DMI_INSTALL_TOPLEVEL=ON`, true),

		cmakeStep(Step{
			Name:      "antlr4",
			SourceDir: "runtime/Cpp",
			Patches: []Patch{
				{
					// MSVC reports __cplusplus as 199711L unless asked not to.
					File:    "runtime/Cpp/CMakeLists.txt",
					Pattern: `(?m)^(\s*)set\(CMAKE_CXX_STANDARD 17\)`,
					Replace: "${1}set(CMAKE_CXX_STANDARD 17)\n${1}add_compile_options(/Zc:__cplusplus /utf-8)",
				},
				{
					File:    "runtime/Cpp/runtime/CMakeLists.txt",
					Pattern: `(?m)^(\s*)gtest_discover_tests\(antlr4_tests\)`,
					Replace: "${1}# gtest_discover_tests(antlr4_tests)",
				},
			},
			PostInstall: []Action{
				Rename("$BUILD/runtime/$CONFIG/antlr4-runtime.pdb", "$DIST/bin/antlr4-runtime.pdb").DebugOnly(),
			},
		}, `-DANTLR_BUILD_CPP_TESTS=OFF -DANTLR4_INSTALL=ON -DWITH_STATIC_CRT=OFF -DANTLR_BUILD_STATIC=OFF -DANTLR_BUILD_SHARED=ON`, false),

		cmakeStep(Step{
			Name: "utf8cpp",
		}, `"-DUTF8_TESTS=$TESTS" -DUTF8_INSTALL=ON -DUTF8_SAMPLES=OFF`, true),

		{
			Name: "uuid_win",
			Build: []Action{
				Exec(msbuildLine + ` "-p:OutDir=$BUILD/" "-p:IntDir=$BUILD/obj/" "$SOURCE/uuid.vcxproj"`).In("$SOURCE"),
			},
			Install: []Action{
				Copy("$SOURCE/uuid.h", "$DIST/include/uuid/uuid.h"),
				Copy("$BUILD/uuid.lib", "$DIST/lib/uuid.lib"),
			},
			PostInstall: []Action{
				Rename("$BUILD/uuid.pdb", "$DIST/lib/uuid.pdb").DebugOnly(),
			},
		},

		{
			// Header-only: install is a straight copy.
			Name: "int128_win",
			Install: []Action{
				CopyTree("$SOURCE/include", "$DIST/include"),
			},
		},

		cmakeStep(Step{
			Name: "win_flex_bison",
			PostInstall: []Action{
				CopyTree("$SRC/bison/data", "$DIST/bin/data"),
			},
		}, ``, false),
	}
}

// LookupStep finds a step by name.
func LookupStep(name string) (Step, error) {
	for _, s := range Steps() {
		if s.Name == name {
			return s, nil
		}
	}
	return Step{}, fmt.Errorf("unknown dependency %q", name)
}

// StepNames returns the names of the step table in build order.
func StepNames() []string {
	steps := Steps()
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		names = append(names, s.Name)
	}
	return names
}
